package cococonv

// COCO specific functionality.

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"

	"github.com/charmbracelet/log"
)

// COCOCategory is an object category declared in a COCO manifest.
type COCOCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// COCOImage is an image record in a COCO manifest.
type COCOImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOAnnotation is a single object annotation within a COCO manifest.
type COCOAnnotation struct {
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	BBox       []float64 `json:"bbox"` // x, y, width, height in pixels.
}

// COCOManifest is the parsed content of a COCO annotation file.
type COCOManifest struct {
	Categories  []COCOCategory // In declaration order.
	Images      []COCOImage
	Annotations []COCOAnnotation

	classIndex map[int]int // Category ID to declaration position.
}

// newCOCOManifest creates a manifest from decoded records and validates them. Category IDs must be
// unique.
func newCOCOManifest(categories []COCOCategory, images []COCOImage,
	annotations []COCOAnnotation) (*COCOManifest, error) {

	m := &COCOManifest{Categories: categories, Images: images, Annotations: annotations}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Top-level keys that every manifest must carry.
var cocoRequiredKeys = []string{"categories", "images", "annotations"}

// Keys that every record of a top-level section must carry.
var cocoRequiredFields = map[string][]string{
	"categories":  {"id", "name"},
	"images":      {"id", "file_name", "width", "height"},
	"annotations": {"image_id", "category_id", "bbox"},
}

// LoadCOCO reads and parses the COCO manifest at path.
func LoadCOCO(path string) (*COCOManifest, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	m, err := ParseCOCO(enc)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	log.Printf("Parsed %d categories, %d images and %d annotations from %s",
		len(m.Categories), len(m.Images), len(m.Annotations), path)

	return m, nil
}

// ParseCOCO parses a COCO manifest from its JSON encoding and validates the required fields.
func ParseCOCO(enc []byte) (*COCOManifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(enc, &raw); err != nil {
		return nil, err
	}
	for _, k := range cocoRequiredKeys {
		if _, ok := raw[k]; !ok {
			return nil, fmt.Errorf("missing key %q", k)
		}
		if err := checkRequiredFields(k, raw[k]); err != nil {
			return nil, err
		}
	}

	var (
		categories  []COCOCategory
		images      []COCOImage
		annotations []COCOAnnotation
	)
	if err := json.Unmarshal(raw["categories"], &categories); err != nil {
		return nil, fmt.Errorf("invalid categories: %w", err)
	}
	if err := json.Unmarshal(raw["images"], &images); err != nil {
		return nil, fmt.Errorf("invalid images: %w", err)
	}
	if err := json.Unmarshal(raw["annotations"], &annotations); err != nil {
		return nil, fmt.Errorf("invalid annotations: %w", err)
	}

	return newCOCOManifest(categories, images, annotations)
}

// checkRequiredFields verifies that every record of the section carries the required keys. A null
// value counts as missing.
func checkRequiredFields(section string, enc json.RawMessage) error {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(enc, &records); err != nil {
		return fmt.Errorf("invalid %s: %w", section, err)
	}

	for i, rec := range records {
		for _, f := range cocoRequiredFields[section] {
			if v, ok := rec[f]; !ok || string(v) == "null" {
				return fmt.Errorf("%s[%d] is missing %q", section, i, f)
			}
		}
	}
	return nil
}

// validate checks the required record fields and builds the class index.
func (m *COCOManifest) validate() error {
	m.classIndex = make(map[int]int, len(m.Categories))
	for i, c := range m.Categories {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", c.ID)
		}
		if _, dup := m.classIndex[c.ID]; dup {
			return fmt.Errorf("duplicate category id %d", c.ID)
		}
		m.classIndex[c.ID] = i
	}

	for _, img := range m.Images {
		if img.FileName == "" {
			return fmt.Errorf("image %d has no file_name", img.ID)
		}
		if img.Width <= 0 || img.Height <= 0 {
			return fmt.Errorf("image %d (%s) has invalid dimensions %dx%d",
				img.ID, img.FileName, img.Width, img.Height)
		}
	}

	unknown := 0
	for i, a := range m.Annotations {
		if len(a.BBox) != 4 {
			return fmt.Errorf("annotation %d has %d bbox values, expected 4", i, len(a.BBox))
		}
		if _, ok := m.classIndex[a.CategoryID]; !ok {
			log.Warn("Annotation refers to an undeclared category, skipping",
				"index", i, "image_id", a.ImageID, "category_id", a.CategoryID)
			unknown++
		}
	}
	if unknown > 0 {
		log.Warnf("%d annotations with undeclared categories will be skipped", unknown)
	}

	return nil
}

// ClassNames returns the category names in declaration order. The position of a name is its
// Darknet class index.
func (m *COCOManifest) ClassNames() []string {
	names := make([]string, len(m.Categories))
	for i, c := range m.Categories {
		names[i] = c.Name
	}
	return names
}

// Class returns the Darknet class index for the COCO category ID.
func (m *COCOManifest) Class(categoryID int) (int, bool) {
	i, ok := m.classIndex[categoryID]
	return i, ok
}

// Labels returns the normalised labels of all annotations belonging to img, in manifest order.
//
// The sequence is lazy and can be ranged over repeatedly. Annotations with an undeclared
// category are left out.
func (m *COCOManifest) Labels(img COCOImage) iter.Seq[DarknetLabel] {
	return func(yield func(DarknetLabel) bool) {
		for _, a := range m.Annotations {
			if a.ImageID != img.ID || len(a.BBox) != 4 {
				continue
			}
			class, ok := m.Class(a.CategoryID)
			if !ok {
				continue
			}
			if !yield(normaliseBBox(class, a.BBox, img.Width, img.Height)) {
				return
			}
		}
	}
}

// normaliseBBox converts the absolute x, y, width, height box to a centre based box relative to
// the image dimensions.
func normaliseBBox(class int, bbox []float64, imgWidth, imgHeight int) DarknetLabel {
	x, y, w, h := bbox[0], bbox[1], bbox[2], bbox[3]
	iw, ih := float64(imgWidth), float64(imgHeight)

	return DarknetLabel{
		Class:  class,
		CX:     (x + w/2) / iw,
		CY:     (y + h/2) / ih,
		Width:  w / iw,
		Height: h / ih,
	}
}
