package elimination

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rules are the deterministic rule tables. They are plain data: DefaultRules
// holds the built-in set and LoadRules overlays a YAML file on top of it.
type Rules struct {
	// Materials maps a material family to the keywords that identify it.
	Materials map[string][]string `yaml:"materials"`
	// Sections is keyed by roman numeral.
	Sections map[string]SectionRule `yaml:"sections"`
	// Chapters is keyed by two-digit chapter.
	Chapters map[string]ChapterRule `yaml:"chapters"`
	// Headings is keyed by four-digit heading.
	Headings map[string]HeadingRule `yaml:"headings"`
	// BoostBy is added to a candidate's confidence per matched boost rule.
	BoostBy float64 `yaml:"boost_by"`
}

// SectionRule lists the material families a section can hold.
type SectionRule struct {
	Families []string `yaml:"families"`
	// FunctionBased sections classify by what the goods do, never by material.
	FunctionBased bool   `yaml:"function_based"`
	Note          string `yaml:"note"`
}

// ChapterRule constrains a chapter by material, form and use. Empty lists
// impose nothing.
type ChapterRule struct {
	RequiresMaterial []string `yaml:"requires_material"`
	ExcludesForm     []string `yaml:"excludes_form"`
	RequiresUse      []string `yaml:"requires_use"`
	Note             string   `yaml:"note"`
}

// HeadingRule is keyword evidence for a heading.
type HeadingRule struct {
	Requires []string `yaml:"requires"`
	Excludes []string `yaml:"excludes"`
	Boosts   []string `yaml:"boosts"`
	Note     string   `yaml:"note"`
}

// LoadRules reads a YAML rules file and overlays it on DefaultRules. Entries
// in the file replace built-in entries with the same key. An empty path
// returns the defaults.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "elimination: read rules %s", path)
	}

	var wrapper struct {
		Elimination Rules `yaml:"elimination"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "elimination: parse rules")
	}

	rules.merge(&wrapper.Elimination)
	return rules, nil
}

func (r *Rules) merge(o *Rules) {
	for k, v := range o.Materials {
		r.Materials[k] = v
	}
	for k, v := range o.Sections {
		r.Sections[k] = v
	}
	for k, v := range o.Chapters {
		r.Chapters[k] = v
	}
	for k, v := range o.Headings {
		r.Headings[k] = v
	}
	if o.BoostBy > 0 {
		r.BoostBy = o.BoostBy
	}
}

// DefaultRules returns the built-in rule tables.
func DefaultRules() *Rules {
	steel := []string{"steel", "iron", "stainless", "פלדה", "ברזל", "נירוסטה"}
	return &Rules{
		BoostBy: 10,
		Materials: map[string][]string{
			"base_metal":  {"steel", "iron", "stainless", "aluminium", "aluminum", "copper", "brass", "bronze", "zinc", "nickel", "metal", "פלדה", "ברזל", "נירוסטה", "אלומיניום", "נחושת", "פליז", "מתכת"},
			"plastics":    {"plastic", "polyethylene", "polypropylene", "pvc", "polymer", "acrylic", "rubber", "silicone", "פלסטיק", "פוליאתילן", "גומי", "סיליקון"},
			"wood":        {"wood", "wooden", "timber", "plywood", "bamboo", "cork", "עץ", "דיקט", "במבוק"},
			"paper":       {"paper", "cardboard", "carton", "paperboard", "נייר", "קרטון"},
			"textiles":    {"cotton", "polyester", "wool", "silk", "nylon", "fabric", "textile", "כותנה", "פוליאסטר", "צמר", "בד"},
			"leather":     {"leather", "suede", "עור"},
			"stone_glass": {"glass", "ceramic", "porcelain", "stone", "marble", "concrete", "זכוכית", "קרמיקה", "חרסינה", "אבן", "שיש"},
		},
		Sections: map[string]SectionRule{
			"VII":   {Families: []string{"plastics"}, Note: "plastics and rubber"},
			"VIII":  {Families: []string{"leather"}, Note: "raw hides, leather and articles thereof"},
			"IX":    {Families: []string{"wood"}, Note: "wood, cork and plaiting materials"},
			"X":     {Families: []string{"paper", "wood"}, Note: "pulp, paper and paperboard"},
			"XI":    {Families: []string{"textiles"}, Note: "textiles and textile articles"},
			"XIII":  {Families: []string{"stone_glass"}, Note: "stone, ceramic and glass"},
			"XV":    {Families: []string{"base_metal"}, Note: "base metals and articles of base metal"},
			"XVI":   {FunctionBased: true, Note: "machinery and electrical equipment"},
			"XVII":  {FunctionBased: true, Note: "vehicles, aircraft and vessels"},
			"XVIII": {FunctionBased: true, Note: "optical, medical and measuring instruments"},
			"XX":    {FunctionBased: true, Note: "miscellaneous manufactured articles"},
		},
		Chapters: map[string]ChapterRule{
			"39": {RequiresMaterial: []string{"plastic", "polyethylene", "polypropylene", "pvc", "polymer", "acrylic", "פלסטיק", "פוליאתילן"}, Note: "plastics and articles thereof"},
			"44": {RequiresMaterial: []string{"wood", "wooden", "timber", "plywood", "bamboo", "עץ", "דיקט", "במבוק"}, Note: "wood and articles of wood"},
			"70": {RequiresMaterial: []string{"glass", "זכוכית"}, Note: "glass and glassware"},
			"72": {
				RequiresMaterial: steel,
				ExcludesForm:     []string{"box", "container", "article", "furniture", "tool", "foldable", "assembled", "קופסה", "קופסת", "קופסאות", "מיכל", "מתקפל", "מתקפלת"},
				Note:             "iron and steel in primary forms and semi-finished products only",
			},
			"73": {RequiresMaterial: steel, Note: "articles of iron or steel"},
			"74": {RequiresMaterial: []string{"copper", "brass", "bronze", "נחושת", "פליז"}, Note: "copper and articles thereof"},
			"76": {RequiresMaterial: []string{"aluminium", "aluminum", "אלומיניום"}, Note: "aluminium and articles thereof"},
			"94": {RequiresUse: []string{"furniture", "seat", "chair", "desk", "cabinet", "shelf", "bed", "lamp", "lighting", "mattress", "prefabricated", "רהיט", "כיסא", "מיטה", "מנורה", "תאורה"}, Note: "furniture, bedding, lamps"},
			"95": {RequiresUse: []string{"toy", "game", "sport", "play", "צעצוע", "משחק", "ספורט"}, Note: "toys, games and sports requisites"},
		},
		Headings: map[string]HeadingRule{
			"8310": {
				Requires: []string{"sign", "plate", "name-plate", "nameplate", "letters", "numbers", "שלט", "לוחית", "אותיות"},
				Note:     "sign-plates, name-plates, letters and numbers of base metal",
			},
			"7310": {
				Requires: []string{"box", "tank", "cask", "drum", "cans", "container", "קופסה", "קופסת", "קופסאות", "מיכל", "חבית", "פח"},
				Boosts:   []string{"box", "container", "storage", "קופסה", "קופסת", "קופסאות", "מיכל", "אחסון"},
				Note:     "tanks, casks, drums, cans and boxes of iron or steel",
			},
			"7323": {
				Requires: []string{"kitchen", "table", "household", "sink", "cookware", "utensil", "scourer", "מטבח", "ביתי", "סיר"},
				Excludes: []string{"storage box", "tool box", "industrial"},
				Note:     "table, kitchen or other household articles of iron or steel",
			},
			"7308": {
				Requires: []string{"structure", "bridge", "tower", "door", "window", "scaffolding", "מבנה", "גשר", "פיגום"},
				Note:     "structures and parts of structures of iron or steel",
			},
			"4202": {
				Requires: []string{"bag", "case", "suitcase", "wallet", "handbag", "briefcase", "תיק", "ארנק", "מזוודה"},
				Note:     "trunks, suitcases, handbags and similar containers",
			},
			"8510": {
				Requires: []string{"shaver", "hair clipper", "hair-removing", "epilator", "מכונת גילוח", "גילוח"},
				Note:     "shavers, hair clippers and hair-removing appliances",
			},
			"8703": {
				Requires: []string{"car", "vehicle", "automobile", "motor car", "רכב", "מכונית"},
				Excludes: []string{"toy", "model", "צעצוע"},
				Note:     "motor cars for the transport of persons",
			},
			"9403": {
				Boosts: []string{"shelf", "cabinet", "drawer", "מדף", "ארון", "מגירה"},
				Note:   "other furniture",
			},
		},
	}
}
