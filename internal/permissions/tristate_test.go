package permissions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriOverlay(t *testing.T) {
	assert.True(t, TriTrue.Overlay(false))
	assert.False(t, TriFalse.Overlay(true))
	assert.True(t, TriUnset.Overlay(true))
	assert.False(t, TriUnset.Overlay(false))
}

func TestTriFromPtrRoundTrip(t *testing.T) {
	assert.Equal(t, TriUnset, TriFrom(nil))

	v := true
	assert.Equal(t, TriTrue, TriFrom(&v))
	v = false
	assert.Equal(t, TriFalse, TriFrom(&v))

	assert.Nil(t, TriUnset.Ptr())
	require.NotNil(t, TriTrue.Ptr())
	assert.True(t, *TriTrue.Ptr())
	require.NotNil(t, TriFalse.Ptr())
	assert.False(t, *TriFalse.Ptr())
}

func TestTriJSON(t *testing.T) {
	var o OverrideSet
	err := json.Unmarshal([]byte(`{"read":true,"update":false}`), &o)
	require.NoError(t, err)

	assert.Equal(t, TriTrue, o.Read)
	assert.Equal(t, TriFalse, o.Update)
	assert.Equal(t, TriUnset, o.Create)

	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.JSONEq(t, `{"create":null,"read":true,"update":false,"delete":null,"list":null}`, string(out))
}

func TestOverrideSetApply(t *testing.T) {
	base := PermissionSet{Read: true, List: true}
	o := OverrideSet{Read: TriFalse, Create: TriTrue}

	got := o.Apply(base)
	assert.False(t, got.Read)
	assert.True(t, got.Create)
	assert.True(t, got.List)
	assert.False(t, got.Update)
}

func TestPermissionSetAllows(t *testing.T) {
	set := PermissionSet{Read: true, Delete: true}
	assert.True(t, set.Allows(ActionRead))
	assert.True(t, set.Allows(ActionDelete))
	assert.False(t, set.Allows(ActionCreate))
	assert.False(t, set.Allows(Action("bogus")))
}

func TestAllNone(t *testing.T) {
	assert.True(t, All().Any())
	assert.False(t, None().Any())
}
