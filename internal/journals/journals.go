// Package journals holds the curated journal reference data: the
// canonical allow-list with accepted name variants, and the impact
// factor table keyed by journal name or abbreviation.
package journals

import "strings"

// Variants maps each canonical journal name to the name variants
// PubMed may return for it. The canonical name is always included.
var Variants = map[string][]string{
	"Nature Reviews Genetics":               {"Nature Reviews Genetics"},
	"Nature Structural & Molecular Biology": {"Nature Structural & Molecular Biology", "Nature Structural and Molecular Biology"},
	"Molecular Cell":                        {"Molecular Cell"},
	"Genome Biology":                        {"Genome Biology"},
	"Epigenetics & Chromatin":               {"Epigenetics & Chromatin", "Epigenetics and Chromatin"},
	"Clinical Epigenetics":                  {"Clinical Epigenetics"},
	"Epigenetics":                           {"Epigenetics"},
	"Nature":                                {"Nature"},
	"Science":                               {"Science"},
	"Cell":                                  {"Cell"},
	"Nature Genetics":                       {"Nature Genetics"},
	"Cell Reports":                          {"Cell Reports"},
	"Nature Communications":                 {"Nature Communications"},
	"Science Advances":                      {"Science Advances"},
	"Cancer Discovery":                      {"Cancer Discovery"},
	"Cell Metabolism":                       {"Cell Metabolism"},
	"Journal of Clinical Investigation":     {"Journal of Clinical Investigation", "JCI"},
	"Oncogene":                              {"Oncogene"},
	"Cancer Research":                       {"Cancer Research"},
	"Clinical Cancer Research":              {"Clinical Cancer Research"},
	"Nature Reviews Cancer":                 {"Nature Reviews Cancer"},
	"Bioinformatics":                        {"Bioinformatics"},
	"PLOS Computational Biology":            {"PLOS Computational Biology", "PLoS Computational Biology"},
	"Briefings in Bioinformatics":           {"Briefings in Bioinformatics"},
	"Nucleic Acids Research":                {"Nucleic Acids Research"},
	"Nature Machine Intelligence":           {"Nature Machine Intelligence"},
	"Cell Systems":                          {"Cell Systems"},
	"IEEE/ACM Trans. Comp. Bio. & Bioinf.":  {"IEEE/ACM Trans. Comp. Bio. & Bioinf.", "IEEE/ACM Transactions on Computational Biology and Bioinformatics"},
	"Journal of Biomedical Informatics":     {"Journal of Biomedical Informatics"},
	"Artificial Intelligence in Medicine":   {"Artificial Intelligence in Medicine"},
	"Patterns":                              {"Patterns"},
	"Database (Biol. Databases & Curation)": {"Database (Biol. Databases & Curation)", "Database"},
	"GigaScience":                           {"GigaScience"},
}

// ImpactFactors maps journal names and Medline abbreviations to their
// impact factor. Lookups should try the raw name first, then its
// lowercase form, then the abbreviation, via ImpactFactor.
var ImpactFactors = map[string]float64{
	"Nature Reviews Genetics": 39.1, "Nat Rev Genet": 39.1,
	"Nature Structural & Molecular Biology": 12.5, "Nature Structural and Molecular Biology": 12.5,
	"Molecular Cell": 14.5, "Mol Cell": 14.5,
	"Genome Biology":          10.1,
	"Epigenetics & Chromatin": 4.2, "Epigenetics and Chromatin": 4.2,
	"Clinical Epigenetics": 4.8,
	"Epigenetics":          2.9,
	"Nature":               50.5,
	"Science":              44.7,
	"Cell":                 45.5,
	"Nature Genetics":      31.7, "Nat Genet": 31.7,
	"Cell Reports": 7.5, "Cell Rep": 7.5,
	"Nature Communications": 14.7, "Nat Commun": 14.7,
	"Science Advances": 11.7, "Sci Adv": 11.7,
	"Cancer Discovery": 29.7,
	"Cell Metabolism":  27.7, "Cell Metab": 27.7,
	"Journal of Clinical Investigation": 13.3, "J Clin Invest": 13.3, "JCI": 13.3,
	"Oncogene":        6.9,
	"Cancer Research": 12.5, "Cancer Res": 12.5,
	"Clinical Cancer Research": 10.0, "Clin Cancer Res": 10.0,
	"Nature Reviews Cancer": 72.5, "Nat Rev Cancer": 72.5,
	"Bioinformatics":             4.4,
	"PLOS Computational Biology": 3.8, "PLoS Computational Biology": 3.8, "PLoS Comput Biol": 3.8,
	"Briefings in Bioinformatics": 6.8, "Brief Bioinform": 6.8,
	"Nucleic Acids Research": 16.7, "Nucleic Acids Res": 16.7,
	"Nature Machine Intelligence": 18.8, "Nat Mach Intell": 18.8,
	"Cell Systems": 9.0, "Cell Syst": 9.0,
	"IEEE/ACM Trans. Comp. Bio. & Bioinf.": 3.6, "IEEE/ACM Transactions on Computational Biology and Bioinformatics": 3.6,
	"Journal of Biomedical Informatics": 4.0, "J Biomed Inform": 4.0,
	"Artificial Intelligence in Medicine": 6.1, "Artif Intell Med": 6.1,
	"Patterns": 6.7,
	"Database (Biol. Databases & Curation)": 3.4, "Database": 3.4,
	"GigaScience": 11.8,
}

// Match finds the canonical journal whose name or any variant equals
// the given name, case-insensitively. It returns the variant list for
// the matched journal and whether a match was found.
func Match(name string) ([]string, bool) {
	for canonical, variants := range Variants {
		if strings.EqualFold(name, canonical) {
			return variants, true
		}
		for _, v := range variants {
			if strings.EqualFold(name, v) {
				return variants, true
			}
		}
	}
	return nil, false
}

// IsAllowed reports whether the raw journal name, as returned by
// PubMed, matches any variant of a curated journal.
func IsAllowed(rawName string) bool {
	for _, variants := range Variants {
		for _, v := range variants {
			if strings.EqualFold(rawName, v) {
				return true
			}
		}
	}
	return false
}

// ImpactFactor resolves the impact factor for a journal. It tries the
// raw name, its lowercase form, the abbreviation and its lowercase
// form, in that order, then falls back to a case-insensitive scan.
// Unmatched journals score 0.
func ImpactFactor(rawName, abbr string) float64 {
	keys := []string{rawName, strings.ToLower(rawName)}
	if abbr != "" {
		keys = append(keys, abbr, strings.ToLower(abbr))
	}
	for _, k := range keys {
		if f, ok := ImpactFactors[k]; ok {
			return f
		}
	}
	for k, f := range ImpactFactors {
		if strings.EqualFold(rawName, k) {
			return f
		}
	}
	return 0.0
}
