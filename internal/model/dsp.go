package model

import "strings"

// dspAliases maps full legal names and short forms, as they appear in the
// authoritative system, to DSP codes.
var dspAliases = map[string]string{
	"ALLMUNA TRANSPORTLOGISTIK GMBH": "AMTP",
	"ALLMUNA":                        "AMTP",
	"AMTP":                           "AMTP",

	"ALBATROS FB EXPRESS GMBH": "ABFB",
	"ALBATROS":                 "ABFB",
	"ABFB":                     "ABFB",

	"BABA TRANS GMBH": "BBGH",
	"BABA TRANS":      "BBGH",
	"BBGH":            "BBGH",

	"NA LOGISTIK GMBH": "NALG",
	"NA LOGISTIK":      "NALG",
	"NALG":             "NALG",

	"MD TRANSPORT GMBH": "MDTR",
	"MD TRANSPORT":      "MDTR",
	"MDTR":              "MDTR",
}

// NormalizeDSP maps a raw DSP name from the authoritative system to its code.
// Returns "" for blank or unrecognized names.
func NormalizeDSP(name string) string {
	if name == "" {
		return ""
	}
	return dspAliases[strings.ToUpper(strings.TrimSpace(name))]
}
