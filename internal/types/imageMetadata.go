package types

// ImageMetadata is what a header probe reveals about an image.
// A zero Width means the probe could not determine it.
type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// EncodedImage is a re-encoded image ready for upload.
type EncodedImage struct {
	Body        []byte
	ContentType string
	Width       int
	Height      int
}
