package bid

// internationalAirports lists common international destinations served by
// US carriers, keyed by IATA code. The table drives the "international"
// soft-rule contribution and the analytics pass; it does not need to be
// exhaustive, only stable.
var internationalAirports = map[string]bool{
	// Europe
	"LHR": true, "LGW": true, "CDG": true, "AMS": true, "FRA": true,
	"MUC": true, "ZRH": true, "GVA": true, "BRU": true, "MAD": true,
	"BCN": true, "FCO": true, "MXP": true, "VIE": true, "ARN": true,
	"OSL": true, "CPH": true, "HEL": true, "DUB": true, "EDI": true,
	"LIS": true, "ATH": true, "IST": true, "KEF": true, "PRG": true,
	// Asia-Pacific
	"NRT": true, "HND": true, "KIX": true, "ICN": true, "PVG": true,
	"PEK": true, "HKG": true, "TPE": true, "SIN": true, "BKK": true,
	"KUL": true, "CGK": true, "MNL": true, "SGN": true, "HAN": true,
	"DEL": true, "BOM": true, "SYD": true, "MEL": true, "BNE": true,
	"AKL": true, "NAN": true, "PPT": true, "GUM": true,
	// Middle East / Africa
	"TLV": true, "DXB": true, "DOH": true, "AUH": true, "AMM": true,
	"CAI": true, "JNB": true, "CPT": true, "LOS": true, "ACC": true,
	"CMN": true, "NBO": true,
	// Americas (outside the contiguous US)
	"YYZ": true, "YVR": true, "YUL": true, "YYC": true, "YEG": true,
	"MEX": true, "CUN": true, "GDL": true, "SJD": true, "PVR": true,
	"MTY": true, "GUA": true, "SAL": true, "SJO": true, "LIR": true,
	"PTY": true, "BOG": true, "MDE": true, "UIO": true, "LIM": true,
	"SCL": true, "EZE": true, "GIG": true, "GRU": true, "MVD": true,
	"PUJ": true, "SDQ": true, "MBJ": true, "KIN": true, "NAS": true,
	"AUA": true, "CUR": true, "POS": true, "BDA": true, "BZE": true,
}

// InternationalAirport reports whether the IATA code is a known
// international destination.
func InternationalAirport(code string) bool {
	return internationalAirports[code]
}

// International reports whether the pairing touches a known international
// destination anywhere in its routing or layovers.
func (p *Pairing) International() bool {
	for _, a := range p.Routing {
		if internationalAirports[a] {
			return true
		}
	}
	for _, l := range p.Layovers {
		if internationalAirports[l.Airport] {
			return true
		}
	}
	return false
}
