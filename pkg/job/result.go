package job

import "strings"

// decodeResult lifts the known output shapes out of a terminal payload:
// {images: [...]}, {video: {url}}, {output: ...}, {text: ...},
// {outputs: [...]}. Unrecognised payloads still come through with Raw set.
func decodeResult(raw map[string]any) *Result {
	res := &Result{Raw: raw}
	if raw == nil {
		return res
	}

	if images, ok := raw["images"].([]any); ok {
		for _, entry := range images {
			if media, ok := mediaFromValue(entry); ok {
				res.Media = append(res.Media, media)
			}
		}
	}
	if video, ok := raw["video"].(map[string]any); ok {
		if media, ok := mediaFromValue(video); ok {
			res.Media = append(res.Media, media)
		}
	}
	if outputs, ok := raw["outputs"].([]any); ok {
		for _, entry := range outputs {
			if media, ok := mediaFromValue(entry); ok {
				res.Media = append(res.Media, media)
			}
		}
	}
	if output, ok := raw["output"]; ok {
		switch typed := output.(type) {
		case string:
			if looksLikeMediaURL(typed) {
				res.Media = append(res.Media, Media{URL: typed})
			} else if res.Text == "" {
				res.Text = typed
			}
		case map[string]any:
			if media, ok := mediaFromValue(typed); ok {
				res.Media = append(res.Media, media)
			}
		case []any:
			for _, entry := range typed {
				if media, ok := mediaFromValue(entry); ok {
					res.Media = append(res.Media, media)
				}
			}
		}
	}
	if text, ok := raw["text"].(string); ok && text != "" {
		res.Text = text
	}
	return res
}

func mediaFromValue(v any) (Media, bool) {
	switch typed := v.(type) {
	case string:
		if typed == "" {
			return Media{}, false
		}
		return Media{URL: typed}, true

	case map[string]any:
		url, _ := typed["url"].(string)
		if url == "" {
			return Media{}, false
		}
		media := Media{URL: url}
		media.ContentType, _ = typed["content_type"].(string)
		if width, ok := typed["width"].(float64); ok {
			media.Width = int(width)
		}
		if height, ok := typed["height"].(float64); ok {
			media.Height = int(height)
		}
		return media, true

	default:
		return Media{}, false
	}
}

func looksLikeMediaURL(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "data:")
}
