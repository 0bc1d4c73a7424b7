package fields

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crim50n/falai-paw/pkg/schema"
)

const fluxDocument = `{
  "openapi": "3.0.4",
  "info": {"title": "Flux Dev", "version": "1.0.0"},
  "paths": {
    "/fal-ai/flux/dev": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {"$ref": "#/components/schemas/FluxInput"}
            }
          }
        },
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "components": {
    "schemas": {
      "FluxInput": {
        "type": "object",
        "required": ["prompt"],
        "properties": {
          "prompt": {
            "type": "string",
            "description": "The prompt to generate an image from. Longer, more detailed prompts typically produce better results than terse ones."
          },
          "negative_prompt": {"type": "string", "description": "Concepts to avoid."},
          "api_key": {"type": "string", "format": "password"},
          "image_url": {"type": "string", "description": "Source <b>image</b> to transform."},
          "mask_url": {"type": "string"},
          "image_size": {
            "anyOf": [
              {"$ref": "#/components/schemas/ImageSize"},
              {"$ref": "#/components/schemas/CustomImageSize"}
            ],
            "default": "landscape_4_3"
          },
          "output_format": {"type": "string", "enum": ["jpeg", "png"], "default": "jpeg"},
          "enable_safety_checker": {"type": "boolean", "default": true},
          "guidance_scale": {"type": "number", "minimum": 1, "maximum": 20, "default": 3.5},
          "num_images": {"type": "integer", "minimum": 1, "maximum": 4, "default": 1},
          "seed": {"type": "integer"},
          "broken_range": {"type": "integer", "minimum": 10, "maximum": 2},
          "image_urls": {"type": "array", "items": {"type": "string"}},
          "loras": {
            "type": "array",
            "items": {"$ref": "#/components/schemas/LoraWeight"}
          },
          "reference": {"$ref": "#/components/schemas/StylePreset"}
        }
      },
      "ImageSize": {
        "type": "string",
        "enum": ["square_hd", "square", "portrait_4_3", "landscape_4_3", "landscape_16_9"]
      },
      "CustomImageSize": {
        "type": "object",
        "properties": {
          "width": {"type": "integer", "minimum": 64, "maximum": 2048},
          "height": {"type": "integer", "minimum": 64, "maximum": 2048}
        }
      },
      "LoraWeight": {
        "type": "object",
        "required": ["path"],
        "properties": {
          "path": {"type": "string", "description": "URL or file path of the LoRA weights."},
          "scale": {"type": "number", "minimum": 0, "maximum": 4, "default": 1}
        }
      },
      "StylePreset": {"type": "string", "description": "Named style preset."}
    }
  }
}`

func mustSynthesize(t *testing.T, raw string) ([]Descriptor, *Report) {
	t.Helper()
	doc := schema.MustNewDocument(schema.SourceFromFile("flux.json"), []byte(raw))
	descriptors, report, err := New(schema.NewResolver(doc)).Synthesize()
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	return descriptors, report
}

func descriptorByName(t *testing.T, descriptors []Descriptor, name string) Descriptor {
	t.Helper()
	for _, d := range descriptors {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("descriptor %q not synthesized", name)
	return Descriptor{}
}

func TestSynthesizeClassifiesEveryKind(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	got := map[string]Kind{}
	for _, d := range descriptors {
		got[d.Name] = d.Kind
	}
	want := map[string]Kind{
		"api_key":               KindSecretText,
		"broken_range":          KindNumber,
		"enable_safety_checker": KindBoolean,
		"guidance_scale":        KindBoundedNumber,
		"image_size":            KindSizedPreset,
		"image_url":             KindImageUpload,
		"image_urls":            KindMultiImageUpload,
		"loras":                 KindRepeatingGroup,
		"mask_url":              KindImageUpload,
		"negative_prompt":       KindText,
		"num_images":            KindBoundedNumber,
		"output_format":         KindEnum,
		"prompt":                KindLongText,
		"reference":             KindText,
		"seed":                  KindNumber,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("kind classification mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeVisitsPropertiesInSortedOrder(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	var got []string
	for _, d := range descriptors {
		got = append(got, d.Name)
	}
	want := []string{
		"api_key", "broken_range", "enable_safety_checker", "guidance_scale",
		"image_size", "image_url", "image_urls", "loras", "mask_url",
		"negative_prompt", "num_images", "output_format", "prompt",
		"reference", "seed",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("descriptor order mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeRequiredAndDefaults(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	prompt := descriptorByName(t, descriptors, "prompt")
	if !prompt.Required {
		t.Error("prompt.Required = false, want true")
	}

	guidance := descriptorByName(t, descriptors, "guidance_scale")
	if guidance.Required {
		t.Error("guidance_scale.Required = true, want false")
	}
	if got, want := guidance.Default, 3.5; got != want {
		t.Errorf("guidance_scale.Default = %v, want %v", got, want)
	}
	if guidance.Constraints.Min == nil || *guidance.Constraints.Min != 1 {
		t.Errorf("guidance_scale.Constraints.Min = %v, want 1", guidance.Constraints.Min)
	}
	if guidance.Constraints.Max == nil || *guidance.Constraints.Max != 20 {
		t.Errorf("guidance_scale.Constraints.Max = %v, want 20", guidance.Constraints.Max)
	}
}

func TestSynthesizeSizedPresetCarriesCustomSchema(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	size := descriptorByName(t, descriptors, "image_size")
	wantEnum := []string{"square_hd", "square", "portrait_4_3", "landscape_4_3", "landscape_16_9"}
	if diff := cmp.Diff(wantEnum, size.Constraints.EnumValues); diff != "" {
		t.Errorf("image_size enum mismatch (-want +got):\n%s", diff)
	}
	if got, want := size.Default, "landscape_4_3"; got != want {
		t.Errorf("image_size.Default = %v, want %v", got, want)
	}
	if size.CustomSize == nil {
		t.Fatal("image_size.CustomSize = nil, want custom schema")
	}
	if _, ok := size.CustomSize.Properties["width"]; !ok {
		t.Error("custom size schema missing width property")
	}
	if _, ok := size.CustomSize.Properties["height"]; !ok {
		t.Error("custom size schema missing height property")
	}
}

func TestSynthesizeSanitizesDescriptions(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	image := descriptorByName(t, descriptors, "image_url")
	if got, want := image.Description, "Source image to transform."; got != want {
		t.Errorf("image_url.Description = %q, want %q", got, want)
	}
}

func TestSynthesizeDegradesInvertedBounds(t *testing.T) {
	t.Parallel()

	descriptors, report := mustSynthesize(t, fluxDocument)

	broken := descriptorByName(t, descriptors, "broken_range")
	if broken.Kind != KindNumber {
		t.Fatalf("broken_range.Kind = %q, want %q", broken.Kind, KindNumber)
	}
	if broken.Constraints.Min != nil || broken.Constraints.Max != nil {
		t.Error("degraded field kept its bounds")
	}

	var noted bool
	for _, note := range report.Notes {
		if note.Field == "broken_range" {
			noted = true
		}
	}
	if !noted {
		t.Errorf("report carries no note for broken_range: %+v", report.Notes)
	}
}

func TestSynthesizeRepeatingGroupResolvesItemSchema(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)

	loras := descriptorByName(t, descriptors, "loras")
	if loras.ItemSchema == nil {
		t.Fatal("loras.ItemSchema = nil, want resolved item schema")
	}
	if _, ok := loras.ItemSchema.Properties["path"]; !ok {
		t.Error("item schema missing path property")
	}
	if _, ok := loras.ItemSchema.Properties["scale"]; !ok {
		t.Error("item schema missing scale property")
	}
}

func TestElementsExpandObjectItems(t *testing.T) {
	t.Parallel()

	descriptors, _ := mustSynthesize(t, fluxDocument)
	loras := descriptorByName(t, descriptors, "loras")

	elements := Elements(loras, 2)
	if len(elements) != 2 {
		t.Fatalf("Elements() returned %d descriptors, want 2", len(elements))
	}

	path := elements[0]
	if got, want := path.Name, "loras[2].path"; got != want {
		t.Errorf("element name = %q, want %q", got, want)
	}
	if path.Kind != KindText {
		t.Errorf("path.Kind = %q, want %q", path.Kind, KindText)
	}
	if !path.Required {
		t.Error("path.Required = false, want true")
	}

	scale := elements[1]
	if got, want := scale.Name, "loras[2].scale"; got != want {
		t.Errorf("element name = %q, want %q", got, want)
	}
	if scale.Kind != KindBoundedNumber {
		t.Errorf("scale.Kind = %q, want %q", scale.Kind, KindBoundedNumber)
	}
	if got, want := scale.Default, float64(1); got != want {
		t.Errorf("scale.Default = %v, want %v", got, want)
	}
}

func TestElementsScalarItems(t *testing.T) {
	t.Parallel()

	items := schema.Schema{Type: "number"}
	group := Descriptor{Name: "weights", Kind: KindRepeatingGroup, ItemSchema: &items}

	elements := Elements(group, 0)
	if len(elements) != 1 {
		t.Fatalf("Elements() returned %d descriptors, want 1", len(elements))
	}
	if got, want := elements[0].Name, "weights[0]"; got != want {
		t.Errorf("element name = %q, want %q", got, want)
	}
	if elements[0].Kind != KindNumber {
		t.Errorf("element kind = %q, want %q", elements[0].Kind, KindNumber)
	}
}

func TestElementsRejectNonGroups(t *testing.T) {
	t.Parallel()

	if got := Elements(Descriptor{Name: "prompt", Kind: KindText}, 0); got != nil {
		t.Errorf("Elements() on scalar = %v, want nil", got)
	}
	items := schema.Schema{Type: "string"}
	group := Descriptor{Name: "tags", Kind: KindRepeatingGroup, ItemSchema: &items}
	if got := Elements(group, -1); got != nil {
		t.Errorf("Elements() with negative index = %v, want nil", got)
	}
}

func TestSynthesizeSkipsArraysWithoutItems(t *testing.T) {
	t.Parallel()

	const doc = `{
  "openapi": "3.0.4",
  "info": {"title": "Broken", "version": "1.0.0"},
  "paths": {
    "/broken": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "bare_list": {"type": "array"},
                  "prompt": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

	descriptors, report := mustSynthesize(t, doc)
	if len(descriptors) != 1 || descriptors[0].Name != "prompt" {
		t.Fatalf("descriptors = %+v, want only prompt", descriptors)
	}
	if len(report.Notes) != 1 || report.Notes[0].Field != "bare_list" {
		t.Errorf("report.Notes = %+v, want one note for bare_list", report.Notes)
	}
}

func TestSynthesizeWithoutWriteOperation(t *testing.T) {
	t.Parallel()

	const doc = `{
  "openapi": "3.0.4",
  "info": {"title": "Read Only", "version": "1.0.0"},
  "paths": {
    "/status": {"get": {"responses": {"200": {"description": "ok"}}}}
  }
}`

	document := schema.MustNewDocument(schema.SourceFromFile("readonly.json"), []byte(doc))
	_, _, err := New(schema.NewResolver(document)).Synthesize()
	if !errors.Is(err, ErrNoInputSchema) {
		t.Fatalf("Synthesize() error = %v, want ErrNoInputSchema", err)
	}
}
