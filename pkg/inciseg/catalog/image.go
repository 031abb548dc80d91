package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ImageRef is a product image field that older catalogs store either as a
// single string or as a list of strings. Single remembers which shape was
// read so re-encoding does not change files it did not mean to fix.
type ImageRef struct {
	URLs   []string
	Single bool
}

// minImageList is the number of images from which a page's images are kept
// as a list; fewer are stored as a single reference.
const minImageList = 3

// SelectImages applies the scraper's storage rule to unique page images.
func SelectImages(urls []string) ImageRef {
	if len(urls) >= minImageList {
		return ImageRef{URLs: append([]string(nil), urls...)}
	}
	if len(urls) == 0 {
		return ImageRef{Single: true}
	}
	return ImageRef{URLs: []string{urls[0]}, Single: true}
}

// AsList returns the same images in list shape; an empty string becomes [].
func (r ImageRef) AsList() ImageRef {
	urls := make([]string, 0, len(r.URLs))
	for _, u := range r.URLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return ImageRef{URLs: urls}
}

// MarshalJSON implements json.Marshaler.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	if r.Single {
		if len(r.URLs) == 0 {
			return []byte(`""`), nil
		}
		return json.Marshal(r.URLs[0])
	}
	if r.URLs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.URLs)
}

// UnmarshalJSON accepts a string, a list of strings or null.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ImageRef{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ImageRef{Single: true}
		if s != "" {
			r.URLs = []string{s}
		}
		return nil
	case len(data) > 0 && data[0] == '[':
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return err
		}
		*r = ImageRef{URLs: urls}
		return nil
	}
	return fmt.Errorf("image: expected string, list or null, got %s", data)
}
