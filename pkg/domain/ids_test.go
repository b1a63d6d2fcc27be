package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseProfileID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseProfileID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseProfileID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		parsed, err := ParseProfileID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ProfileID(validUUID), parsed)
	})
}

// TestParseID_SecurityInvariants validates that parsing rejects attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE profiles;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJoinRequestID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errPrincipal := ParsePrincipalID(validUUID)
		_, errSession := ParseSessionID(validUUID)
		_, errProfile := ParseProfileID(validUUID)
		_, errRequest := ParseJoinRequestID(validUUID)
		_, errEdge := ParseVouchEdgeID(validUUID)

		require.NoError(t, errPrincipal)
		require.NoError(t, errSession)
		require.NoError(t, errProfile)
		require.NoError(t, errRequest)
		require.NoError(t, errEdge)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errPrincipal := ParsePrincipalID(input)
			_, errSession := ParseSessionID(input)
			_, errProfile := ParseProfileID(input)
			_, errRequest := ParseJoinRequestID(input)
			_, errEdge := ParseVouchEdgeID(input)

			require.Error(t, errPrincipal)
			require.Error(t, errSession)
			require.Error(t, errProfile)
			require.Error(t, errRequest)
			require.Error(t, errEdge)
		})
	}
}

func TestIsNil(t *testing.T) {
	assert.True(t, ProfileID(uuid.Nil).IsNil())
	assert.False(t, ProfileID(uuid.New()).IsNil())
	assert.True(t, PrincipalID{}.IsNil())
}

func TestIDsAreStringsInJSON(t *testing.T) {
	u := uuid.New()
	b, err := json.Marshal(struct {
		Profile ProfileID  `json:"profile"`
		Voucher *ProfileID `json:"voucher"`
	}{Profile: ProfileID(u)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"profile":"`+u.String()+`","voucher":null}`, string(b))

	var decoded struct {
		Request JoinRequestID `json:"request"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"request":"`+u.String()+`"}`), &decoded))
	assert.Equal(t, JoinRequestID(u), decoded.Request)
}
