package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimLink(t *testing.T) {
	g := NewGenerator("https://attendify.example/")

	assert.Equal(t, "https://attendify.example/claim?id=rCustody", g.ClaimLink("rCustody"))
}

func TestClaimQR_PNG(t *testing.T) {
	g := NewGenerator("http://localhost:3000")

	data, err := g.ClaimQR("rCustody")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestClaimQR_EmptyAccount(t *testing.T) {
	_, err := NewGenerator("http://localhost:3000").ClaimQR("")
	assert.Error(t, err)
}
