package hscode

// chapterSections maps each chapter to its section. Chapter 77 is reserved.
var chapterSections = map[string]string{
	// Section I
	"01": "I", "02": "I", "03": "I", "04": "I", "05": "I",
	// Section II
	"06": "II", "07": "II", "08": "II", "09": "II", "10": "II", "11": "II",
	"12": "II", "13": "II", "14": "II",
	// Section III
	"15": "III",
	// Section IV
	"16": "IV", "17": "IV", "18": "IV", "19": "IV", "20": "IV", "21": "IV",
	"22": "IV", "23": "IV", "24": "IV",
	// Section V
	"25": "V", "26": "V", "27": "V",
	// Section VI
	"28": "VI", "29": "VI", "30": "VI", "31": "VI", "32": "VI", "33": "VI",
	"34": "VI", "35": "VI", "36": "VI", "37": "VI", "38": "VI",
	// Section VII
	"39": "VII", "40": "VII",
	// Section VIII
	"41": "VIII", "42": "VIII", "43": "VIII",
	// Section IX
	"44": "IX", "45": "IX", "46": "IX",
	// Section X
	"47": "X", "48": "X", "49": "X",
	// Section XI
	"50": "XI", "51": "XI", "52": "XI", "53": "XI", "54": "XI", "55": "XI",
	"56": "XI", "57": "XI", "58": "XI", "59": "XI", "60": "XI", "61": "XI",
	"62": "XI", "63": "XI",
	// Section XII
	"64": "XII", "65": "XII", "66": "XII", "67": "XII",
	// Section XIII
	"68": "XIII", "69": "XIII", "70": "XIII",
	// Section XIV
	"71": "XIV",
	// Section XV
	"72": "XV", "73": "XV", "74": "XV", "75": "XV", "76": "XV", "78": "XV",
	"79": "XV", "80": "XV", "81": "XV", "82": "XV", "83": "XV",
	// Section XVI
	"84": "XVI", "85": "XVI",
	// Section XVII
	"86": "XVII", "87": "XVII", "88": "XVII", "89": "XVII",
	// Section XVIII
	"90": "XVIII", "91": "XVIII", "92": "XVIII",
	// Section XIX
	"93": "XIX",
	// Section XX
	"94": "XX", "95": "XX", "96": "XX",
	// Section XXI
	"97": "XXI",
}

// residualHeadings are "other articles of ..." headings that catch goods of a
// material not more specifically described elsewhere.
var residualHeadings = map[string]bool{
	"3926": true, // other articles of plastics
	"4016": true, // other articles of vulcanised rubber
	"4205": true, // other articles of leather
	"4421": true, // other articles of wood
	"6307": true, // other made up textile articles
	"6815": true, // articles of stone or other mineral substances n.e.s.
	"6914": true, // other ceramic articles
	"7020": true, // other articles of glass
	"7326": true, // other articles of iron or steel
	"7419": true, // other articles of copper
	"7508": true, // other articles of nickel
	"7616": true, // other articles of aluminium
	"8007": true, // other articles of tin
	"8479": true, // machines having individual functions n.e.s.
	"8543": true, // electrical machines having individual functions n.e.s.
}

