// Package prompt renders the instruction text sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/nhle/mail-triage/internal/model"
)

// Placeholders substituted into templates.
const (
	PlaceholderRatings    = "{PromptRatings}"
	PlaceholderCategories = "{Categories}"
	PlaceholderEmail      = "{EmailJson}"
)

// NoCategories replaces {Categories} when no category is enabled.
const NoCategories = "No categories configured"

// DefaultRatingTemplate asks for a rating only.
const DefaultRatingTemplate = `
You are to rate this email based on the following criteria:

{PromptRatings}

All other topics should be rated somewhere between 1 and 7 based on how important you think they are

Keep your output in json format, do not provide any other information or tell me why you rated it that way, just provide the rating.

Here is an example:
{
  "Subject" : "Bills are due",
  "From" : "John",
  "Date" : "2021-09-01",
  "Rating" : 10
}

input:
{EmailJson}`

// DefaultCategoryTemplate asks for a rating and one category.
const DefaultCategoryTemplate = `
You are an email assistant. Your task is to rate the importance and categorize the following email.

Rating Criteria:
{PromptRatings}

Available Categories:
{Categories}

Instructions:
- Rate the email's importance from 0 (not important) to 10 (very important).
- Assign the email to ONE category from the list above, or use null if no category fits.
- Only output a single JSON object in the following format:

{
  "Subject": "<subject>",
  "From": "<from>",
  "Date": "<date>",
  "Rating": <number>,
  "Category": "<category or null>"
}

Do not include any explanation, extra text, or formatting outside the JSON object.

Here is the email:
{EmailJson}`

// Category is one enabled category as shown to the model.
type Category struct {
	Name        string
	Description string
}

// Options configures a Builder. Empty templates select the defaults.
type Options struct {
	Ratings          string
	Template         string
	CategoryTemplate string

	// CategoriesEnabled selects the rating+category template.
	CategoriesEnabled bool
	Categories        []Category
}

// FromConfig derives Options from the application configuration.
func FromConfig(ai model.AIConfig, cats model.CategoriesConfig) Options {
	opts := Options{
		Ratings:           ai.PromptRatings,
		Template:          ai.PromptTemplate,
		CategoryTemplate:  ai.CategoryPromptTemplate,
		CategoriesEnabled: cats.Enabled,
	}
	for _, c := range cats.EnabledItems() {
		opts.Categories = append(opts.Categories, Category{Name: c.Name, Description: c.Description})
	}
	return opts
}

// Builder renders prompts. The rubric and category list are substituted
// once; only the message payload varies per call.
type Builder struct {
	base string
}

// NewBuilder pre-renders the template selected by opts.
func NewBuilder(opts Options) *Builder {
	var base string
	if opts.CategoriesEnabled {
		base = opts.CategoryTemplate
		if strings.TrimSpace(base) == "" {
			base = DefaultCategoryTemplate
		}
		base = strings.ReplaceAll(base, PlaceholderRatings, opts.Ratings)
		base = strings.ReplaceAll(base, PlaceholderCategories, CategoryList(opts.Categories))
	} else {
		base = opts.Template
		if strings.TrimSpace(base) == "" {
			base = DefaultRatingTemplate
		}
		base = strings.ReplaceAll(base, PlaceholderRatings, opts.Ratings)
	}
	return &Builder{base: base}
}

// CategoryList formats categories as "- name: description" lines.
func CategoryList(cats []Category) string {
	if len(cats) == 0 {
		return NoCategories
	}
	lines := make([]string, len(cats))
	for i, c := range cats {
		lines[i] = fmt.Sprintf("- %s: %s", c.Name, c.Description)
	}
	return strings.Join(lines, "\n")
}

// Base returns the template with everything but {EmailJson} substituted.
func (b *Builder) Base() string { return b.base }

// Render substitutes the serialized view into the template.
func (b *Builder) Render(view model.MessageView) (string, error) {
	payload, err := view.JSON()
	if err != nil {
		return "", fmt.Errorf("serializing message: %w", err)
	}
	return strings.ReplaceAll(b.base, PlaceholderEmail, payload), nil
}
