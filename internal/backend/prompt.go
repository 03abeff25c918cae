package backend

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// Genres maps category ids to the wording used in prompts.
var Genres = map[string]string{
	"mystery":    "mystery and suspenseful thriller",
	"romance":    "romantic and heartfelt",
	"scifi":      "science fiction with futuristic elements",
	"fantasy":    "fantasy with magical elements",
	"horror":     "horror and scary",
	"comedy":     "humorous and funny",
	"drama":      "dramatic and emotional",
	"adventure":  "adventurous and action-packed",
	"historical": "historical fiction",
	"crime":      "true crime style",
	"slice":      "slice of life and everyday situations",
	"aita":       "AITA (Am I The Asshole) reddit-style",
}

var styles = []string{
	"confessional and wry",
	"breathless, present tense",
	"deadpan with sharp asides",
	"warm but exasperated",
	"tense and clipped",
	"chatty group-chat energy",
	"quietly devastated",
	"petty and self-aware",
}

var topics = []string{
	"a wedding seating chart",
	"a shared streaming password",
	"a borrowed car returned empty",
	"a surprise visit from in-laws",
	"a neighbor's security camera",
	"a group trip budget",
	"a forgotten birthday",
	"a roommate's new pet",
	"an inheritance nobody expected",
	"a promotion at the wrong time",
	"a secret recipe",
	"a baby name dispute",
	"a haunted rental listing",
	"a missing heirloom ring",
	"a lottery ticket split",
	"a last-minute flight change",
}

// Prompt is a fully built completion prompt.
type Prompt struct {
	System string
	User   string
	// TitleHint identifies the story idea for near-duplicate checks.
	TitleHint string
}

// Text joins the prompt into the single string sent upstream.
func (p Prompt) Text() string {
	return p.System + "\n\nUser:\n" + p.User
}

func pick(list []string, seed, salt string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte(seed))
	return list[h.Sum32()%uint32(len(list))]
}

// genreLine describes the selected categories, or "" when none are known.
func genreLine(categories []string) string {
	var descs []string
	for _, c := range categories {
		if d, ok := Genres[strings.ToLower(c)]; ok {
			descs = append(descs, d)
		}
	}
	if len(descs) == 0 {
		return ""
	}
	return fmt.Sprintf("Genre: write a %s story.", strings.Join(descs, ", "))
}

// BuildPrompt builds the prompt for req. summary is the rolling summary of
// recent stories and may be empty.
func BuildPrompt(req generate.Request, summary string) Prompt {
	style := pick(styles, req.Seed, "style")
	topic := pick(topics, req.Seed, "topic")

	system := strings.Join(nonEmpty(
		"You are a fast, punchy storyteller for short-form, social video. You can be slightly inappropriate.",
		"Voice: Reddit AITA/relationships cadence; modern, self-aware, realistic.",
		"Avoid identifiable brands and real names. No explicit content.",
		"Write clean, readable prose.",
		genreLine(req.Context.Categories),
	), "\n")

	var user string
	flavor := req.Continuation
	if generate.FlavorFor(req.Context.Categories) == generate.FlavorAITA {
		flavor = generate.FlavorAITA
	}

	if req.Mode == generate.ModeContinue {
		var prior string
		if req.Context.Prior != "" {
			prior = "PRIOR CONTEXT (verbatim excerpts):\n" + req.Context.Prior + "\n"
		}
		next := "Write the next scene/arc continuing the same characters, stakes, and tone."
		if flavor == generate.FlavorAITA {
			next = "Write an UPDATE entry in the same AITA thread from the same narrator."
		}
		user = strings.Join(nonEmpty(
			prior,
			next,
			"Keep continuity (names/ages/relationships/timeline).",
			"Do NOT recap the entire prior story; advance it.",
			fmt.Sprintf("LENGTH: ~%d words.", max(80, min(200, req.MaxWords))),
			"FORMAT (must match exactly):",
			"Story: <continue narrative only; no Title, no Hook>",
		), "\n")
		if flavor == "" {
			flavor = generate.FlavorArc
		}
		return Prompt{System: system, User: user, TitleHint: "continuation:" + string(flavor)}
	}

	var context string
	if summary != "" {
		context = "Context so far: " + summary
	}
	user = strings.Join([]string{
		context,
		fmt.Sprintf("STYLE: %s.", style),
		fmt.Sprintf("TOPIC SEED (for inspiration, optional): %s", topic),
		fmt.Sprintf("LENGTH: ~%d words total.", req.MaxWords),
		"FORMAT (must match exactly with labels):",
		"Title: <one line, vivid, no quotes>",
		"",
		"Hook: <1-2 lines, immediate stakes/tension, no label repetition>",
		"",
		"Story: <5-10 short, vivid sentences; grounded; conclude on a reflective beat or \"AITA?\" if relevant>",
		"",
		"Keep your tone and voice concise and fit for your story. Do not change your voice suddenly.",
	}, "\n")
	if context == "" {
		user = strings.TrimPrefix(user, "\n")
	}

	hint := "seed:" + topic + " " + style
	if len(req.Context.Categories) > 0 {
		hint += " " + strings.Join(req.Context.Categories, " ")
	}
	return Prompt{System: system, User: user, TitleHint: hint}
}

func nonEmpty(lines ...string) []string {
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
