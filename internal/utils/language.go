package utils

import (
	"strings"
	"unicode"
)

// Language codes
const (
	LangEnglish  = "en"
	LangHebrew   = "he"
	LangArabic   = "ar"
	LangRussian  = "ru"
	LangChinese  = "zh"
	LangJapanese = "ja"
	LangKorean   = "ko"
)

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

type script struct {
	code  string
	name  string
	table *unicode.RangeTable
}

// scripts are checked in this order; Han is shared by Chinese and Japanese
var scripts = []script{
	{LangHebrew, "Hebrew", unicode.Hebrew},
	{LangArabic, "Arabic", unicode.Arabic},
	{LangRussian, "Russian", unicode.Cyrillic},
	{LangChinese, "Chinese", unicode.Han},
	{LangKorean, "Korean", unicode.Hangul},
}

const (
	scriptThreshold = 0.1  // share of runes needed to claim a language
	mixedThreshold  = 0.01 // fallback for mostly-Latin mixed text
	kanaThreshold   = 0.05 // kana share that turns Han text into Japanese
)

var english = Language{Code: LangEnglish, Name: "English"}

// DetectLanguage guesses the language of text from its script. Latin text
// and anything unrecognized is reported as English.
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return english
	}

	counts := make([]int, len(scripts))
	kana, total := 0, 0
	for _, r := range text {
		total++
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			kana++
			continue
		}
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}

	best := -1
	bestRatio := 0.0
	for _, threshold := range []float64{scriptThreshold, mixedThreshold} {
		for i, count := range counts {
			ratio := float64(count) / float64(total)
			if ratio > threshold && ratio > bestRatio {
				best, bestRatio = i, ratio
			}
		}
		if best >= 0 {
			break
		}
	}

	kanaRatio := float64(kana) / float64(total)
	if kanaRatio > kanaThreshold && (best < 0 || scripts[best].code == LangChinese) {
		return Language{Code: LangJapanese, Name: "Japanese", Confidence: bestRatio + kanaRatio}
	}
	if best < 0 {
		return english
	}
	return Language{Code: scripts[best].code, Name: scripts[best].name, Confidence: bestRatio}
}

// GetLanguageInstruction returns a language instruction for the AI based on detected language
func GetLanguageInstruction(lang Language) string {
	switch lang.Code {
	case LangHebrew:
		return "Please respond in Hebrew (עברית)."
	case LangArabic:
		return "Please respond in Arabic (العربية)."
	case LangRussian:
		return "Please respond in Russian (Русский)."
	case LangChinese:
		return "Please respond in Chinese (中文)."
	case LangJapanese:
		return "Please respond in Japanese (日本語)."
	case LangKorean:
		return "Please respond in Korean (한국어)."
	default:
		return "Please respond in English."
	}
}
