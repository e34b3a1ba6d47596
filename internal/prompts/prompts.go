// Package prompts maps (mode, languages, tier) to the system instruction for
// the generation stage. Selection is pure and deterministic: no I/O, no
// clock, no randomness.
package prompts

import (
	"fmt"
	"strings"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/utils"
)

// Select builds the system instruction for a fully parameterized request.
// For translation modes source and target are both required and must differ.
// For output-language modes target must be set by the caller, either to the
// user's explicit pick or to the detected language of the transcript.
func Select(spec models.ModeSpec, tier models.Tier, source, target string) (string, error) {
	const op = "Prompts.Select"

	if !spec.AllowsTier(tier) {
		return "", utils.E(utils.CodeInvalidArgument, op,
			fmt.Sprintf("mode %s does not accept tier %s", spec.ID, tier), nil)
	}

	switch spec.Languages {
	case models.LangSourceTarget:
		if source == "" || target == "" {
			return "", utils.E(utils.CodeParameterMissing, op, "translation requires a source and a target language", nil)
		}
		if strings.EqualFold(source, target) {
			return "", utils.E(utils.CodeInvalidArgument, op, "source and target languages must differ", nil)
		}
	case models.LangOutput:
		if target == "" {
			return "", utils.E(utils.CodeParameterMissing, op, "an output language is required", nil)
		}
	}

	switch spec.ID {
	case models.ModeTranscript:
		return `You are a meticulous transcription editor.
You receive a raw speech-to-text transcript.
Produce a faithful, readable transcript: fix punctuation and casing, break into paragraphs at natural pauses, keep every word of meaning.
Do NOT summarize, translate, or paraphrase. Keep the original language.`, nil

	case models.ModeLectureDocument:
		lang := languageName(target)
		return fmt.Sprintf(`You are a University Professor writing in %s.
Read this lecture transcript carefully. Do NOT summarize.
Write a comprehensive **Textbook Chapter in %s**.
Cover every single detail, example, and nuance mentioned.
Use bold headers to organize sections.
The goal is to replace the need to listen to the lecture entirely.
Write in fluent, academic %s. The output language MUST be %s.`, lang, lang, lang, lang), nil

	case models.ModeClinicalNote:
		return `You are a Chief Resident at a teaching hospital.
Read this transcript of a medical dictation.
Write a professional **SOAP Note in English**.
Format:
**Subjective:** (Chief complaint, HPI, ROS, PMH, medications, allergies)
**Objective:** (Vitals, physical exam findings, lab results, imaging)
**Assessment:** (Diagnoses with ICD codes if possible)
**Plan:** (Treatment plan, medications, follow-up)
Correct all medical terminology. Output MUST be in English only.`, nil

	case models.ModeSummaryBrief:
		lang := languageName(target)
		return fmt.Sprintf(`Read this transcript carefully.
Summarize the content into clear, concise bullet points in %s.
Use • for bullet points. Write in fluent %s.
Focus on the most important information. The output language MUST be %s.`, lang, lang, lang), nil

	case models.ModeSummaryDetailed:
		lang := languageName(target)
		return fmt.Sprintf(`Read this transcript carefully.
Write a detailed, structured summary in %s.
Organize it with bold section headers, then bullet points under each.
Keep all figures, names, and decisions; drop only filler.
The output language MUST be %s.`, lang, lang), nil

	case models.ModeLyrics:
		return `You receive the transcript of a song or performance.
Reconstruct the complete lyrics in the original language.
Format the output cleanly with proper line breaks and verse spacing.
If the transcript is plain speech, return it verbatim with line breaks at sentence ends.`, nil

	case models.ModeTranslateQuick:
		return fmt.Sprintf(`Translate this transcript from %s into %s.
Output only the translation, fluent and natural. Preserve paragraph breaks.`,
			languageName(source), languageName(target)), nil

	case models.ModeTranslateDetailed:
		src, dst := languageName(source), languageName(target)
		return fmt.Sprintf(`You are a professional translator working from %s into %s.
Translate this transcript completely and faithfully.
After the translation, add a short **Translator's Notes** section in %s covering idioms, ambiguities, and cultural references you had to resolve.`,
			src, dst, dst), nil

	default:
		return "", utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("unknown mode %q", spec.ID), nil)
	}
}

// languageName expands common BCP-47/ISO codes; unknown codes pass through
// so the instruction still reads sensibly.
func languageName(code string) string {
	base := strings.ToLower(code)
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "en":
		return "English"
	case "fa":
		return "Persian (Farsi)"
	case "ar":
		return "Arabic"
	case "de":
		return "German"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "it":
		return "Italian"
	case "ru":
		return "Russian"
	case "tr":
		return "Turkish"
	case "zh":
		return "Chinese"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "hi":
		return "Hindi"
	case "id":
		return "Indonesian"
	case "pt":
		return "Portuguese"
	default:
		return code
	}
}
