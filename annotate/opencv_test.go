//go:build gocv

package annotate

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCVAnnotator_Annotate(t *testing.T) {
	src := solidImage(200, 200)
	a := NewOpenCV(DefaultStyle())

	out, err := a.Annotate(src, sampleDetections())
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err, "output should be a valid JPEG")
	assert.Equal(t, src.Bounds(), img.Bounds())
}
