package inspector

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Strip removes every key matching *_url from the document, recursively.
// avatar_url survives and html_url is renamed to url. Stripping is
// idempotent: a stripped document passes through unchanged.
func Strip(doc gjson.Result) gjson.Result {
	return gjson.Parse(stripRaw(doc))
}

func stripRaw(doc gjson.Result) string {
	switch {
	case doc.IsObject():
		out := "{}"
		doc.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			if strings.HasSuffix(key, "_url") && key != "avatar_url" {
				if key != "html_url" {
					return true
				}
				key = "url"
			}
			out, _ = sjson.SetRaw(out, escapePath(key), stripRaw(v))
			return true
		})
		return out
	case doc.IsArray():
		var sb strings.Builder
		sb.WriteByte('[')
		for i, item := range doc.Array() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(stripRaw(item))
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		return doc.Raw
	}
}

// escapePath protects sjson path metacharacters in JSON keys.
func escapePath(key string) string {
	r := strings.NewReplacer("\\", "\\\\", ".", "\\.", "#", "\\#", "*", "\\*", "?", "\\?", "|", "\\|", "@", "\\@")
	return r.Replace(key)
}
