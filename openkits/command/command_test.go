package command

import (
	"testing"

	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
	"github.com/stretchr/testify/assert"
)

func TestTarget(t *testing.T) {
	d := Deps{Sessions: session.NewRegistry()}
	id := uuid.MustParse("0b9d1f8e-3c4a-4f7e-9a51-2d6c8e4b7a10")

	for _, tc := range []struct {
		name   string
		in     string
		wantID uuid.UUID
		want   string
		ok     bool
	}{
		{name: "offline uuid", in: id.String(), wantID: id, want: id.String(), ok: true},
		{name: "upper case uuid", in: "0B9D1F8E-3C4A-4F7E-9A51-2D6C8E4B7A10", wantID: id, want: id.String(), ok: true},
		{name: "offline name", in: "Steve"},
		{name: "malformed uuid", in: "0b9d1f8e-3c4a-4f7e"},
		{name: "empty", in: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			gotID, got, ok := d.target(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.wantID, gotID)
			assert.Equal(t, tc.want, got)
		})
	}
}
