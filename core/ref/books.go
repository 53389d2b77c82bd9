package ref

import "strings"

// bookOrder maps USFM book codes to their canonical position (1-66).
var bookOrder = map[string]int{
	"GEN": 1, "EXO": 2, "LEV": 3, "NUM": 4, "DEU": 5, "JOS": 6,
	"JDG": 7, "RUT": 8, "1SA": 9, "2SA": 10, "1KI": 11, "2KI": 12,
	"1CH": 13, "2CH": 14, "EZR": 15, "NEH": 16, "EST": 17, "JOB": 18,
	"PSA": 19, "PRO": 20, "ECC": 21, "SNG": 22, "ISA": 23, "JER": 24,
	"LAM": 25, "EZK": 26, "DAN": 27, "HOS": 28, "JOL": 29, "AMO": 30,
	"OBA": 31, "JON": 32, "MIC": 33, "NAM": 34, "HAB": 35, "ZEP": 36,
	"HAG": 37, "ZEC": 38, "MAL": 39,
	"MAT": 40, "MRK": 41, "LUK": 42, "JHN": 43, "ACT": 44, "ROM": 45,
	"1CO": 46, "2CO": 47, "GAL": 48, "EPH": 49, "PHP": 50, "COL": 51,
	"1TH": 52, "2TH": 53, "1TI": 54, "2TI": 55, "TIT": 56, "PHM": 57,
	"HEB": 58, "JAS": 59, "1PE": 60, "2PE": 61, "1JN": 62, "2JN": 63,
	"3JN": 64, "JUD": 65, "REV": 66,
}

// bookNames maps USFM book codes to English display names.
var bookNames = map[string]string{
	"GEN": "Genesis", "EXO": "Exodus", "LEV": "Leviticus", "NUM": "Numbers",
	"DEU": "Deuteronomy", "JOS": "Joshua", "JDG": "Judges", "RUT": "Ruth",
	"1SA": "1 Samuel", "2SA": "2 Samuel", "1KI": "1 Kings", "2KI": "2 Kings",
	"1CH": "1 Chronicles", "2CH": "2 Chronicles", "EZR": "Ezra", "NEH": "Nehemiah",
	"EST": "Esther", "JOB": "Job", "PSA": "Psalms", "PRO": "Proverbs",
	"ECC": "Ecclesiastes", "SNG": "Song of Solomon", "ISA": "Isaiah", "JER": "Jeremiah",
	"LAM": "Lamentations", "EZK": "Ezekiel", "DAN": "Daniel", "HOS": "Hosea",
	"JOL": "Joel", "AMO": "Amos", "OBA": "Obadiah", "JON": "Jonah",
	"MIC": "Micah", "NAM": "Nahum", "HAB": "Habakkuk", "ZEP": "Zephaniah",
	"HAG": "Haggai", "ZEC": "Zechariah", "MAL": "Malachi",
	"MAT": "Matthew", "MRK": "Mark", "LUK": "Luke", "JHN": "John",
	"ACT": "Acts", "ROM": "Romans", "1CO": "1 Corinthians", "2CO": "2 Corinthians",
	"GAL": "Galatians", "EPH": "Ephesians", "PHP": "Philippians", "COL": "Colossians",
	"1TH": "1 Thessalonians", "2TH": "2 Thessalonians", "1TI": "1 Timothy", "2TI": "2 Timothy",
	"TIT": "Titus", "PHM": "Philemon", "HEB": "Hebrews", "JAS": "James",
	"1PE": "1 Peter", "2PE": "2 Peter", "1JN": "1 John", "2JN": "2 John",
	"3JN": "3 John", "JUD": "Jude", "REV": "Revelation",
}

// bookAliases maps common OSIS abbreviations and English names (upper-cased)
// to USFM book codes. Forms whose upper case already equals the code
// (e.g. "Gen" -> "GEN") need no entry.
var bookAliases = map[string]string{
	"EXOD": "EXO", "EXODUS": "EXO", "DEUT": "DEU", "JOSH": "JOS",
	"JUDG": "JDG", "RUTH": "RUT", "1SAM": "1SA", "2SAM": "2SA",
	"1KGS": "1KI", "2KGS": "2KI", "1CHR": "1CH", "2CHR": "2CH",
	"EZRA": "EZR", "ESTH": "EST", "PS": "PSA", "PSALM": "PSA",
	"PSALMS": "PSA", "PROV": "PRO", "ECCL": "ECC", "SONG": "SNG",
	"EZEK": "EZK", "JOEL": "JOL", "AMOS": "AMO", "OBAD": "OBA",
	"JONAH": "JON", "NAH": "NAM", "ZEPH": "ZEP", "ZECH": "ZEC",
	"MATT": "MAT", "MARK": "MRK", "LUKE": "LUK", "JOHN": "JHN",
	"ACTS": "ACT", "1COR": "1CO", "2COR": "2CO", "PHIL": "PHP",
	"1THESS": "1TH", "2THESS": "2TH", "1TIM": "1TI", "2TIM": "2TI",
	"TITUS": "TIT", "PHLM": "PHM", "1PET": "1PE", "2PET": "2PE",
	"1JOHN": "1JN", "2JOHN": "2JN", "3JOHN": "3JN", "JUDE": "JUD",
}

// NormalizeBook converts a book name or abbreviation to its USFM code.
// Unknown books pass through upper-cased.
func NormalizeBook(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := bookOrder[upper]; ok {
		return upper
	}
	if code, ok := bookAliases[upper]; ok {
		return code
	}
	return upper
}

// BookNumber returns the canonical position (1-66) of a USFM book code.
func BookNumber(code string) (int, bool) {
	n, ok := bookOrder[code]
	return n, ok
}

// BookName returns the English display name for a USFM book code, or the
// code itself when unknown.
func BookName(code string) string {
	if name, ok := bookNames[code]; ok {
		return name
	}
	return code
}

// IsKnownBook reports whether the code is one of the 66 canonical books.
func IsKnownBook(code string) bool {
	_, ok := bookOrder[code]
	return ok
}
