package types_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureClass
	}{
		{
			name: "auth invalid tag",
			err:  goerr.New("token expired", goerr.T(types.ErrTagAuthInvalid)),
			want: types.FailureAuthInvalid,
		},
		{
			name: "permanent tag",
			err:  goerr.New("unsupported feed", goerr.T(types.ErrTagPermanent)),
			want: types.FailurePermanent,
		},
		{
			name: "transient tag",
			err:  goerr.New("connection reset", goerr.T(types.ErrTagTransient)),
			want: types.FailureTransient,
		},
		{
			name: "untagged error defaults to transient",
			err:  errors.New("something odd"),
			want: types.FailureTransient,
		},
		{
			name: "wrapped auth error keeps its class",
			err:  goerr.Wrap(goerr.New("401", goerr.T(types.ErrTagAuthInvalid)), "fetch failed"),
			want: types.FailureAuthInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, types.ClassifyError(tt.err)).Equal(tt.want)
		})
	}
}
