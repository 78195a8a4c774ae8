package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/healthyai/internal/common"
)

type recorder struct {
	got []Notification
	err error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

type staticPrefs struct {
	prefs Prefs
	err   error
}

func (s staticPrefs) NotificationPrefs(context.Context, uint64) (Prefs, error) {
	return s.prefs, s.err
}

func TestGate(t *testing.T) {
	cases := []struct {
		name    string
		src     staticPrefs
		wantErr error
		sent    int
	}{
		{"granted and push", staticPrefs{prefs: Prefs{Permission: PermissionGranted, Push: true}}, nil, 1},
		{"push off", staticPrefs{prefs: Prefs{Permission: PermissionGranted}}, ErrSuppressed, 0},
		{"denied", staticPrefs{prefs: Prefs{Permission: PermissionDenied, Push: true}}, ErrSuppressed, 0},
		{"default", staticPrefs{prefs: Prefs{Permission: PermissionDefault, Push: true}}, ErrSuppressed, 0},
		{"no settings", staticPrefs{err: common.ErrNotFound}, ErrSuppressed, 0},
		{"store down", staticPrefs{err: common.ErrTransientIO}, common.ErrTransientIO, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next := &recorder{}
			g := &Gate{Prefs: c.src, Next: next}
			err := g.Notify(context.Background(), Notification{UserID: 7, Title: "t"})
			if c.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, c.wantErr)
			}
			assert.Len(t, next.got, c.sent)
		})
	}
}
