package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 10x10 square around the origin with a 2x2 hole in the middle.
const squareWithHole = `{
	"type": "Polygon",
	"coordinates": [
		[[-5, -5], [5, -5], [5, 5], [-5, 5], [-5, -5]],
		[[-1, -1], [1, -1], [1, 1], [-1, 1], [-1, -1]]
	]
}`

const twoSquares = `{
	"type": "MultiPolygon",
	"coordinates": [
		[[[0, 0], [2, 0], [2, 2], [0, 2], [0, 0]]],
		[[[10, 10], [12, 10], [12, 12], [10, 12], [10, 10]]]
	]
}`

func TestParseZoneRejectsUnsupportedTypes(t *testing.T) {
	_, err := ParseZone([]byte(`{"type": "Point", "coordinates": [1, 2]}`))
	assert.Error(t, err)

	_, err = ParseZone([]byte(`{"type": "Polygon", "coordinates": []}`))
	assert.Error(t, err)

	_, err = ParseZone([]byte(`not json`))
	assert.Error(t, err)
}

func TestContainsSimplePolygon(t *testing.T) {
	zone, err := ParseZone([]byte(squareWithHole))
	require.NoError(t, err)

	assert.True(t, zone.Contains(Point{Lng: 3, Lat: 3}))
	assert.False(t, zone.Contains(Point{Lng: 6, Lat: 0}))
	assert.False(t, zone.Contains(Point{Lng: -7, Lat: -7}))
}

func TestContainsHoleIsOutside(t *testing.T) {
	zone, err := ParseZone([]byte(squareWithHole))
	require.NoError(t, err)

	// Inside the outer ring but inside the hole: not contained.
	assert.False(t, zone.Contains(Point{Lng: 0, Lat: 0}))
	assert.False(t, zone.Contains(Point{Lng: 0.5, Lat: -0.5}))

	// Between the hole and the outer boundary: contained.
	assert.True(t, zone.Contains(Point{Lng: 2, Lat: 0}))
}

func TestContainsMultiPolygonUnion(t *testing.T) {
	zone, err := ParseZone([]byte(twoSquares))
	require.NoError(t, err)

	assert.True(t, zone.Contains(Point{Lng: 1, Lat: 1}))
	assert.True(t, zone.Contains(Point{Lng: 11, Lat: 11}))
	assert.False(t, zone.Contains(Point{Lng: 5, Lat: 5}))
}

func TestContainsNilZone(t *testing.T) {
	var zone *Zone
	assert.False(t, zone.Contains(Point{Lng: 0, Lat: 0}))
}
