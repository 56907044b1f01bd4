package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/model"
)

func rec(name, addr, phone, website string) model.CanonicalRecord {
	return model.CanonicalRecord{BusinessName: name, Address: addr, Phone: phone, Website: website}
}

func TestKey_WebsiteWins(t *testing.T) {
	r := rec("Blue Parrot", "1 Main St", "(512) 555-0101", "https://www.blueparrot.com/")
	assert.Equal(t, "blueparrot.com", Key(r))
}

func TestKey_PhoneWhenNoWebsite(t *testing.T) {
	r := rec("Blue Parrot", "1 Main St", "+1 (512) 555-0101", "")
	assert.Equal(t, "5125550101", Key(r))
}

func TestKey_NameAddressFallback(t *testing.T) {
	r := rec("Blue Parrot", "1 Main St, Austin, TX", "", "")
	assert.Equal(t, "blue parrot|1 main st, austin, tx", Key(r))
}

func TestKey_DiacriticFolding(t *testing.T) {
	a := rec("Café Olé", "1 Main St", "", "")
	b := rec("Cafe Ole", "1 Main St", "", "")
	assert.Equal(t, Key(a), Key(b))
}

func TestRecords_FirstSeenWins(t *testing.T) {
	first := rec("Blue Parrot", "1 Main St", "", "blueparrot.com")
	first.Page = 1
	dup := rec("Blue Parrot Cafe", "1 Main Street", "", "https://blueparrot.com")
	dup.Page = 2
	other := rec("Red Fox", "2 Oak Ave", "", "redfox.com")

	out := Records([]model.CanonicalRecord{first, dup, other})
	require.Len(t, out, 2)
	assert.Equal(t, "Blue Parrot", out[0].BusinessName)
	assert.Equal(t, 1, out[0].Page)
	assert.Equal(t, "Red Fox", out[1].BusinessName)
}

func TestRecords_OutputNeverLongerThanInput(t *testing.T) {
	in := []model.CanonicalRecord{
		rec("A", "1 St", "", ""),
		rec("B", "2 St", "", ""),
		rec("A", "1 St", "", ""),
		rec("C", "3 St", "", ""),
		rec("B", "2 St", "", ""),
	}
	out := Records(in)
	assert.LessOrEqual(t, len(out), len(in))
	assert.Len(t, out, 3)
}

func TestRecords_EmptyInput(t *testing.T) {
	assert.Empty(t, Records(nil))
	assert.Empty(t, Records([]model.CanonicalRecord{}))
}

func TestRecords_PhoneCollision(t *testing.T) {
	a := rec("Joe's Pizza", "10 Elm St", "512-555-0101", "")
	b := rec("Joes Pizza", "10 Elm Street", "(512) 555 0101", "")
	out := Records([]model.CanonicalRecord{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "Joe's Pizza", out[0].BusinessName)
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"https://www.example.com/", "example.com"},
		{"http://example.com", "example.com"},
		{"WWW.Example.COM", "example.com"},
		{"example.com/menu", "example.com/menu"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWebsite(tt.in), tt.in)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"(512) 555-0101", "5125550101"},
		{"+1 512 555 0101", "5125550101"},
		{"1-512-555-0101", "5125550101"},
		{"no digits", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}
