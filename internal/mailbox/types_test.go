package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKey(t *testing.T) {
	arrival := time.Date(2025, 12, 5, 14, 42, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  RawMessage
		want string
	}{
		{
			name: "message id wins",
			msg:  RawMessage{MessageID: "  <abc@mail.example.com> ", Subject: "Alarma", Arrival: arrival},
			want: "<abc@mail.example.com>",
		},
		{
			name: "subject and arrival without message id",
			msg:  RawMessage{Subject: "  Alarma -  IMPACTO - MG069 ", Arrival: arrival},
			want: "Alarma - IMPACTO - MG069|2025-12-05T14:42:00+00:00",
		},
		{
			name: "arrival normalized to utc",
			msg:  RawMessage{Subject: "x", Arrival: arrival.In(time.FixedZone("PET", -5*3600))},
			want: "x|2025-12-05T14:42:00+00:00",
		},
		{
			name: "blank message id falls back",
			msg:  RawMessage{MessageID: "   ", Subject: "", Arrival: arrival},
			want: "|2025-12-05T14:42:00+00:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.IdentityKey())
		})
	}
}

func TestIdentityKey_StableAcrossFetches(t *testing.T) {
	arrival := time.Date(2025, 12, 5, 14, 42, 0, 0, time.UTC)
	a := RawMessage{UID: 1, Subject: "Alarma - FRENADA - MG070", Arrival: arrival}
	b := RawMessage{UID: 9, Subject: "Alarma - FRENADA -  MG070", Arrival: arrival}

	assert.Equal(t, a.IdentityKey(), b.IdentityKey())
}

func TestSearchCriteria(t *testing.T) {
	since := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	c := searchCriteria(Criteria{Since: since})
	assert.Equal(t, since, c.Since)
	assert.True(t, c.Before.IsZero())
	assert.Empty(t, c.NotFlag)

	c = searchCriteria(Criteria{Since: since, Before: since.AddDate(0, 1, 0), UnseenOnly: true})
	assert.Equal(t, since.AddDate(0, 1, 0), c.Before)
	assert.Len(t, c.NotFlag, 1)
}
