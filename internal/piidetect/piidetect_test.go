package piidetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindEmail(t *testing.T) {
	d := New(Email)
	spans := d.Find("contact me at jane.doe@example.com please")
	require.Len(t, spans, 1)
	require.Equal(t, Email, spans[0].Subtype)
	require.Equal(t, "jane.doe@example.com", spans[0].Value)
}

func TestFindMultipleSubtypes(t *testing.T) {
	d := New(Email, SSN)
	spans := d.Find("ssn 123-45-6789 email a@b.co")
	require.Len(t, spans, 2)
}

func TestAnyShortCircuitsWithoutMatch(t *testing.T) {
	d := New(CreditCard)
	require.False(t, d.Any("nothing sensitive here"))
	require.True(t, d.Any("card 4111-1111-1111-1111"))
}

func TestDefaultSubtypesUsedWhenNoneGiven(t *testing.T) {
	d := New()
	require.Equal(t, len(DefaultSubtypes), len(d.subtypes))
}
