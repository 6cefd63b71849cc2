package dashboard

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// parseHiddenInputs harvests every hidden input's name/value pair from the
// compose page markup. The page embeds a rotating anti-forgery token among
// otherwise-static hidden fields, so no field name is assumed here; whatever
// is present gets carried into the submission.
func parseHiddenInputs(r io.Reader) map[string]string {
	hidden := map[string]string{}

	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return hidden
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "input" {
				continue
			}
			var inputType, name, value string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "type":
					inputType = strings.ToLower(attr.Val)
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if inputType == "hidden" && name != "" {
				hidden[name] = value
			}
		}
	}
}
