package common_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/common"
)

func TestDecodeLooseRejectsNonObjects(t *testing.T) {
	_, err := common.DecodeLoose([]byte(`null`))
	require.Error(t, err)

	_, err = common.DecodeLoose([]byte(`[1,2]`))
	require.Error(t, err)

	_, err = common.DecodeLoose([]byte(`{"id":`))
	require.Error(t, err)
}

func TestLooseAccessorsFollowKeyPriority(t *testing.T) {
	obj, err := common.DecodeLoose([]byte(`{
		"id": "  ",
		"_id": 4021,
		"nombre": "Malbec Reserva",
		"name": null,
		"totales": {"total": "10500"},
		"productos": [{"id": "a"}]
	}`))
	require.NoError(t, err)

	require.Equal(t, "4021", obj.String("id", "_id"))
	require.Equal(t, "Malbec Reserva", obj.String("name", "nombre"))
	require.Nil(t, obj.Value("name"))
	require.Equal(t, "Malbec Reserva", obj.Value("name", "nombre"))

	totals := obj.Object("totals", "totales")
	require.NotNil(t, totals)
	total, ok := totals.Money("total")
	require.True(t, ok)
	require.EqualValues(t, 10500, total)

	require.Len(t, obj.List("items", "productos"), 1)
	require.Nil(t, obj.Object("missing"))
	require.Nil(t, obj.List("missing"))
}

func TestLooseMoneyRounding(t *testing.T) {
	obj, err := common.DecodeLoose([]byte(`{"a": 1999.5, "b": "250.49", "c": -2.5, "d": "abc", "e": true, "f": ""}`))
	require.NoError(t, err)

	v, ok := obj.Money("a")
	require.True(t, ok)
	require.EqualValues(t, 2000, v)

	v, ok = obj.Money("b")
	require.True(t, ok)
	require.EqualValues(t, 250, v)

	v, ok = obj.Money("c")
	require.True(t, ok)
	require.EqualValues(t, -3, v)

	for _, key := range []string{"d", "e", "f", "missing"} {
		_, ok = obj.Money(key)
		require.False(t, ok, "key %s", key)
	}

	v, ok = obj.Money("d", "a")
	require.True(t, ok)
	require.EqualValues(t, 2000, v)
}

func TestDecodeLooseValue(t *testing.T) {
	v, err := common.DecodeLooseValue([]byte(`[{"id": 1}]`))
	require.NoError(t, err)
	list, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
}
