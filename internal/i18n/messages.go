package i18n

// Error banner strings shown by the client. Only failure-facing strings live
// here; the full UI string tables are rendered elsewhere.

type Messages struct {
	ChatFailure   string
	UploadFailure string
}

var byLanguage = map[string]Messages{
	"ar": {
		ChatFailure:   "عذراً، حدث خطأ ما. يرجى المحاولة مرة أخرى.",
		UploadFailure: "فشل تحميل الملف.",
	},
	"fr": {
		ChatFailure:   "Désolé, une erreur s'est produite. Veuillez réessayer.",
		UploadFailure: "Échec du téléchargement du fichier.",
	},
}

// For returns the message set for the given language, falling back to Arabic.
func For(lang string) Messages {
	if msgs, ok := byLanguage[lang]; ok {
		return msgs
	}
	return byLanguage["ar"]
}
