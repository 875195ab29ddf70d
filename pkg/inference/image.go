package inference

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
)

// Image is an encoded picture attached to a message.
type Image struct {
	// Data is the encoded image (JPEG or PNG).
	Data []byte

	// MIMEType defaults to image/jpeg when empty.
	MIMEType string
}

// DataURL returns the image as a base64 data URL, the form chat APIs accept.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// EncodeJPEG encodes a decoded frame as a JPEG Image.
func EncodeJPEG(img image.Image, quality int) (Image, error) {
	if quality <= 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, err
	}
	return Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}
