package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scrapeExecutor fetches a document like the rest executor and performs
// structured extraction: CSS selector + index + optional attribute per
// configured sensor. A missing selector match or attribute resolves to nil
// with a warning rather than failing the whole call.
type scrapeExecutor struct {
	caps Capabilities
}

func (s *scrapeExecutor) Validate(raw map[string]any) (Config, error) {
	cfg, err := validateRequestConfig(KindScrape, raw)
	if err != nil {
		return nil, err
	}

	sensors := asList(raw["sensor"])
	if len(sensors) == 0 {
		return nil, fmt.Errorf("%w: scrape function requires a sensor list", ErrInvalidFunction)
	}
	for i, sensor := range sensors {
		m := asMap(sensor)
		if m == nil {
			return nil, fmt.Errorf("%w: sensor %d must be a mapping", ErrInvalidFunction, i)
		}
		if sel, _ := m["select"].(string); sel == "" {
			return nil, fmt.Errorf("%w: sensor %d requires select", ErrInvalidFunction, i)
		}
		if tmpl, ok := m["value_template"].(string); ok {
			if err := validateTemplate(tmpl); err != nil {
				return nil, fmt.Errorf("%w: sensor %d value_template: %v", ErrInvalidFunction, i, err)
			}
		}
	}
	cfg["sensor"] = sensors
	return cfg, nil
}

func (s *scrapeExecutor) Execute(ctx context.Context, cfg Config, args Arguments, _ CallerContext, _ []ExposedEntity) (any, error) {
	body, err := fetchResource(ctx, s.caps, cfg, args)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}

	// Each sensor's value accumulates into the argument set so later
	// sensors and the final value template can reference earlier ones.
	env := map[string]any(args.Clone())
	var value any
	for _, raw := range asList(cfg["sensor"]) {
		sensor := asMap(raw)
		value = s.extractValue(doc, sensor)

		if tmpl, ok := sensor["value_template"].(string); ok {
			value, err = renderValueTemplate(tmpl, value, args)
			if err != nil {
				return nil, err
			}
		}

		env["value"] = value
		if name, ok := sensor["name"].(string); ok && name != "" {
			if containsTemplate(name) {
				if name, err = renderTemplate("sensor_name", name, args, nil); err != nil {
					return nil, err
				}
			}
			env[name] = value
		}
	}

	result := env["value"]
	if tmpl, ok := cfg["value_template"].(string); ok {
		return renderValueTemplate(tmpl, result, env)
	}
	return result, nil
}

// extractValue resolves one sensor's selector against the document.
// Out-of-range indexes and absent attributes degrade to nil.
func (s *scrapeExecutor) extractValue(doc *goquery.Document, sensor map[string]any) any {
	selector, _ := sensor["select"].(string)
	index := 0
	if v, ok := floatValue(sensor["index"]); ok {
		index = int(v)
	}

	selection := doc.Find(selector)
	if index < 0 || index >= selection.Length() {
		s.caps.Logger.Warn("scrape index not found", "select", selector, "index", index)
		return nil
	}
	node := selection.Eq(index)

	if attr, ok := sensor["attribute"].(string); ok && attr != "" {
		value, exists := node.Attr(attr)
		if !exists {
			s.caps.Logger.Warn("scrape attribute not found", "select", selector, "attribute", attr)
			return nil
		}
		return value
	}
	return strings.TrimSpace(node.Text())
}
