package toolbar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/elements"
	"github.com/livetemplate/pagecraft/internal/kv"
	"github.com/livetemplate/pagecraft/internal/security"
)

const (
	// AssetPrefix namespaces uploaded images in the asset store.
	AssetPrefix = "image_asset_"
	// AssetPath is the URL prefix image content points at after an upload.
	AssetPath = "/assets/"
)

// ImageTypes are the accepted upload MIME types.
var ImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml"}

// Filter is one entry of the image filter list.
type Filter struct {
	ID  string
	CSS string
}

// Filters lists the image-filters options.
var Filters = []Filter{
	{ID: "none", CSS: "none"},
	{ID: "grayscale", CSS: "grayscale(1)"},
	{ID: "sepia", CSS: "sepia(1)"},
	{ID: "blur", CSS: "blur(2px)"},
	{ID: "brightness", CSS: "brightness(1.2)"},
	{ID: "contrast", CSS: "contrast(1.2)"},
	{ID: "saturate", CSS: "saturate(1.5)"},
}

// Asset is an uploaded image.
type Asset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	Size       int       `json:"size"`
	Data       []byte    `json:"data"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Asset loads an uploaded image by id.
func (d *Dispatcher) Asset(ctx context.Context, id string) (Asset, error) {
	var a Asset
	err := kv.GetJSON(ctx, d.assets, AssetPrefix+id, &a)
	if errors.Is(err, kv.ErrNotFound) {
		return Asset{}, &elements.Error{Code: elements.CodeNotFound, Op: "load asset", Err: fmt.Errorf("asset %s: %w", id, err)}
	}
	return a, err
}

func (d *Dispatcher) image(ctx context.Context, op string, p Params) (*document.Element, error) {
	sectionID, key, err := selection(op, p)
	if err != nil {
		return nil, err
	}
	el, err := d.engine.GetElement(ctx, sectionID, key)
	if err != nil {
		return nil, err
	}
	if el.Type != document.TypeImage {
		return nil, invalid(op, sectionID, key, "element is a %s, not an image", el.Type)
	}
	return el, nil
}

// replaceImage swaps the image source for an uploaded file ("file" as bytes
// or "data" as base64) or for a "url".
func (d *Dispatcher) replaceImage(ctx context.Context, p Params) (bool, error) {
	const op = "replace image"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	if p.Has("url") {
		return d.setImageURL(ctx, op, el, p.String("url"), p.String("alt"))
	}

	data, err := upload(p)
	if err != nil {
		return false, invalid(op, el.SectionID, el.Key, "%v", err)
	}
	if len(data) == 0 {
		return false, invalid(op, el.SectionID, el.Key, "file, data or url is required")
	}
	if int64(len(data)) > d.maxImageBytes {
		d.announce("Image file must be smaller than " + humanize.IBytes(uint64(d.maxImageBytes)))
		return false, invalid(op, el.SectionID, el.Key, "image is %d bytes, limit is %d", len(data), d.maxImageBytes)
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), ImageTypes...) {
		d.announce("Invalid file type. Please upload a valid image file.")
		return false, invalid(op, el.SectionID, el.Key, "unsupported image type %s", mt.String())
	}

	name := p.String("filename")
	asset := Asset{
		ID:         uuid.NewString(),
		Name:       name,
		MimeType:   mt.String(),
		Size:       len(data),
		Data:       data,
		UploadedAt: d.now(),
	}
	if err := kv.SetJSON(ctx, d.assets, AssetPrefix+asset.ID, asset); err != nil {
		return false, &elements.Error{Code: elements.CodeFault, Op: op, Section: el.SectionID, Element: el.Key, Err: err}
	}

	if err := d.engine.UpdateElementContent(ctx, el.SectionID, el.Key, document.TextContent(AssetPath+asset.ID)); err != nil {
		return false, err
	}
	props := document.Props{"mimeType": asset.MimeType}
	if alt := p.String("alt"); alt != "" {
		props["alt"] = alt
	} else if name != "" {
		props["alt"] = name
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, props); err != nil {
		return false, err
	}
	d.announce("Image replaced")
	return true, nil
}

func (d *Dispatcher) setImageURL(ctx context.Context, op string, el *document.Element, url, alt string) (bool, error) {
	if err := security.ValidateLinkURL(url); err != nil {
		return false, invalid(op, el.SectionID, el.Key, "%v", err)
	}
	if err := d.engine.UpdateElementContent(ctx, el.SectionID, el.Key, document.TextContent(url)); err != nil {
		return false, err
	}
	if alt != "" {
		if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"alt": alt, "mimeType": nil}); err != nil {
			return false, err
		}
	}
	d.announce("Image replaced")
	return true, nil
}

func upload(p Params) ([]byte, error) {
	if b, ok := p["file"].([]byte); ok {
		return b, nil
	}
	s := p.String("data")
	if s == "" {
		return nil, nil
	}
	// Accept data URLs as produced by FileReader.readAsDataURL.
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i > 0 {
		s = s[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("data is not valid base64: %w", err)
	}
	return b, nil
}

// stockPhotos applies a chosen stock photo url. Without one the client shows
// its search panel.
func (d *Dispatcher) stockPhotos(ctx context.Context, p Params) (bool, error) {
	const op = "stock photos"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	if !p.Has("url") {
		return true, nil
	}
	return d.setImageURL(ctx, op, el, p.String("url"), p.String("alt"))
}

// editImage updates sizing props. Without any it only acknowledges.
func (d *Dispatcher) editImage(ctx context.Context, p Params) (bool, error) {
	const op = "edit image"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	props := document.Props{}
	for _, name := range []string{"width", "height", "objectFit"} {
		if p.Has(name) {
			props[name] = p.String(name)
		}
	}
	if len(props) == 0 {
		return true, nil
	}
	if fit, ok := props["objectFit"]; ok && !contains([]string{"cover", "contain", "fill", "none", "scale-down"}, fit.(string)) {
		return false, invalid(op, el.SectionID, el.Key, "objectFit %q is not supported", fit)
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, props); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) altText(ctx context.Context, p Params) (bool, error) {
	const op = "alt text"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	alt := strings.TrimSpace(p.String("altText"))
	if alt == "" {
		return false, invalid(op, el.SectionID, el.Key, "alt text must not be empty")
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"alt": alt}); err != nil {
		return false, err
	}
	d.announce("Alt text updated")
	return true, nil
}

func (d *Dispatcher) imageFilters(ctx context.Context, p Params) (bool, error) {
	const op = "image filters"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	ids := make([]string, len(Filters))
	for i, f := range Filters {
		ids[i] = f.ID
	}
	id, err := d.choose(ctx, op, p, "filter", "Select filter", ids, true)
	if err != nil {
		return false, err
	}
	var css string
	for _, f := range Filters {
		if f.ID == id {
			css = f.CSS
		}
	}
	if err := d.paint(ctx, op, el.SectionID, el.Key, map[string]string{"filter": css}); err != nil {
		return false, err
	}
	var value any = css
	if id == "none" {
		value = nil
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"filter": value}); err != nil {
		return false, err
	}
	return true, nil
}

// optimizeImage re-detects the stored type of an uploaded image and refreshes
// its mimeType prop. Images that are not uploads are left alone.
func (d *Dispatcher) optimizeImage(ctx context.Context, p Params) (bool, error) {
	const op = "optimize image"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	src := el.Content.String()
	if !strings.HasPrefix(src, AssetPath) {
		return true, nil
	}
	asset, err := d.Asset(ctx, strings.TrimPrefix(src, AssetPath))
	if err != nil {
		return false, err
	}
	mt := mimetype.Detect(asset.Data).String()
	if el.Props.String("mimeType") == mt {
		return true, nil
	}
	if err := d.engine.SetElementProps(ctx, el.SectionID, el.Key, document.Props{"mimeType": mt}); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) deleteImage(ctx context.Context, p Params) (bool, error) {
	const op = "delete image"
	el, err := d.image(ctx, op, p)
	if err != nil {
		return false, err
	}
	if err := d.confirm(ctx, op, el.SectionID, el.Key, "Are you sure you want to delete this image?"); err != nil {
		return false, err
	}
	return d.engine.RemoveElement(ctx, el.SectionID, el.Key, elements.RemoveOptions{SkipConfirm: true})
}
