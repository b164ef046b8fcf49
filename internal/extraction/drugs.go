package extraction

import (
	"strings"

	"github.com/trialscout/trial-matcher/internal/domain"
)

// drugClasses maps treatment keywords (generic and brand names, procedures) to
// a treatment category. Earlier groups win when a name matches several, so a
// regimen note like "trastuzumab + paclitaxel" lands under targeted therapy.
var drugClasses = []struct {
	category domain.TreatmentCategory
	keywords []string
}{
	{domain.TARGETED_THERAPY, []string{
		"osimertinib", "tagrisso", "erlotinib", "tarceva", "gefitinib", "iressa", "afatinib", "dacomitinib",
		"amivantamab", "lazertinib",
		"alectinib", "crizotinib", "lorlatinib", "brigatinib", "ceritinib", "entrectinib",
		"sotorasib", "adagrasib", "capmatinib", "tepotinib", "dabrafenib", "trametinib",
		"selpercatinib", "pralsetinib", "larotrectinib",
		"trastuzumab", "herceptin", "pertuzumab", "enhertu", "kadcyla", "lapatinib", "tucatinib", "neratinib",
		"palbociclib", "ibrance", "ribociclib", "kisqali", "abemaciclib", "verzenio",
		"olaparib", "talazoparib", "alpelisib", "capivasertib", "everolimus",
		"sacituzumab", "datopotamab",
	}},
	{domain.IMMUNOTHERAPY, []string{
		"pembrolizumab", "keytruda", "nivolumab", "opdivo", "atezolizumab", "tecentriq",
		"durvalumab", "imfinzi", "ipilimumab", "cemiplimab", "tremelimumab",
	}},
	{domain.HORMONE_THERAPY, []string{
		"letrozole", "anastrozole", "exemestane", "tamoxifen", "fulvestrant", "elacestrant",
		"goserelin", "leuprolide", "aromatase inhibitor", "endocrine",
	}},
	{domain.CHEMOTHERAPY, []string{
		"carboplatin", "cisplatin", "paclitaxel", "taxol", "abraxane", "docetaxel", "pemetrexed",
		"doxorubicin", "adriamycin", "cyclophosphamide", "capecitabine", "gemcitabine", "eribulin",
		"vinorelbine", "etoposide", "chemotherapy", "chemo",
	}},
	{domain.RADIATION, []string{
		"radiation", "radiotherapy", "radiosurgery", "srs", "sbrt", "wbrt", "stereotactic", "gamma knife",
	}},
	{domain.SURGERY, []string{
		"surgery", "lumpectomy", "mastectomy", "lobectomy", "pneumonectomy", "segmentectomy",
		"wedge resection", "resection", "craniotomy", "sentinel node", "axillary dissection",
	}},
}

// TreatmentCategoryOf infers the treatment category of a drug or procedure name
func TreatmentCategoryOf(name string) (domain.TreatmentCategory, bool) {
	n := strings.ToLower(name)
	for _, class := range drugClasses {
		for _, kw := range class.keywords {
			if containsWord(n, kw) {
				return class.category, true
			}
		}
	}
	return "", false
}

// containsWord matches kw on word boundaries so "srs" does not hit inside other words
func containsWord(s, kw string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], kw)
		if idx < 0 {
			return false
		}
		i := start + idx
		j := i + len(kw)
		if (i == 0 || !isLetter(s[i-1])) && (j == len(s) || !isLetter(s[j])) {
			return true
		}
		start = i + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
