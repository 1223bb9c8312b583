package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// jpegQuality applies to frames converted from YUYV.
const jpegQuality = 90

// yuyvToJPEG encodes a packed YUYV 4:2:2 frame as JPEG.
func yuyvToJPEG(frame []byte, width, height int) ([]byte, error) {
	if want := width * height * 2; len(frame) < want {
		return nil, fmt.Errorf("short yuyv frame: %d bytes, want %d", len(frame), want)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := frame[y*width*2:]
		for x := 0; x+1 < width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			c := y*img.CStride + x/2
			img.Cb[c] = row[i+1]
			img.Cr[c] = row[i+3]
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
