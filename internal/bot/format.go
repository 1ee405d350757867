package bot

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"release_bot/internal/model"
)

const (
	seriesURLPrefix = "https://www.crunchyroll.com/series/"
	watchURLPrefix  = "https://www.crunchyroll.com/watch/"

	// Telegram rejects photo captions longer than 1024 UTF-16 units.
	maxCaptionLen       = 1024
	maxDescriptionRunes = 500
	maxTitleRunes       = 200

	aboutPrefix = "<b>About:</b>\n"
	aboutSuffix = "\n\n"
	ellipsis    = "..."
)

var (
	underscoreRun = regexp.MustCompile(`_+`)
	titleCaser    = cases.Title(language.English)
)

// FormatAnnouncement renders the HTML caption of an episode announcement.
// The description is cut to what fits in a photo caption; when even the
// other parts overflow, hashtags and then genres are dropped.
func FormatAnnouncement(ep model.Episode, rating model.Rating, languages map[string]string) string {
	title := ep.SeriesTitle
	if ep.AudioLocale != "" && ep.AudioLocale != model.JapaneseLocale {
		title = fmt.Sprintf("%s (%s dub)", title, LanguageName(ep.AudioLocale, languages))
	}
	head := fmt.Sprintf("<b>%s</b>\n\n", escape(truncate(title, maxTitleRunes)))

	var genres string
	if g := FormatGenres(ep.Categories); g != "" {
		genres = fmt.Sprintf("<b>Genres:</b> %s\n\n", escape(g))
	}

	var tags string
	if t := Hashtags(ep); t != "" {
		tags = "\n\n" + t
	}

	stats := formatStats(ep, rating)
	render := func(about string) string {
		return head + genres + "<blockquote>" + about + stats + "</blockquote>" + tags
	}

	if captionLen(render("")) > maxCaptionLen {
		tags = ""
	}
	if captionLen(render("")) > maxCaptionLen {
		genres = ""
	}

	var about string
	if ep.Description != "" {
		budget := maxCaptionLen - captionLen(render("")) - captionLen(aboutPrefix+aboutSuffix)
		if desc := fitDescription(ep.Description, budget); desc != "" {
			about = aboutPrefix + desc + aboutSuffix
		}
	}
	return render(about)
}

func formatStats(ep model.Episode, rating model.Rating) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Season: <b>%d</b>\n", ep.SeasonNumber)
	fmt.Fprintf(&b, "Episode: <b>%d</b>\n", ep.EpisodeNumber)
	fmt.Fprintf(&b, "Duration: <b>%d mins</b>", int(ep.Duration.Minutes()))
	if rating.Total > 0 {
		fmt.Fprintf(&b, "\nSeries rating: <b>%s★ (%s)</b>", escape(rating.Average), FormatCount(rating.Total))
	}
	if len(ep.MaturityRatings) > 0 {
		fmt.Fprintf(&b, "\nAge restrictions: <b>%s</b>", escape(strings.Join(ep.MaturityRatings, ", ")))
	}
	return b.String()
}

// fitDescription escapes s, keeping at most maxDescriptionRunes runes and
// budget caption units. A cut description ends with an ellipsis.
func fitDescription(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionRunes {
		if e := escape(s); captionLen(e) <= budget {
			return e
		}
	}

	var b strings.Builder
	used := len(ellipsis)
	for i, r := range runes {
		if i == maxDescriptionRunes {
			break
		}
		e := escape(string(r))
		n := captionLen(e)
		if used+n > budget {
			break
		}
		b.WriteString(e)
		used += n
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + ellipsis
}

// captionLen measures s in UTF-16 code units, the unit of Telegram's caption
// limit. Markup is counted too, so the result never undercounts.
func captionLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// AnnouncementButtons returns the series page and watch page links.
func AnnouncementButtons(ep model.Episode) []model.LinkButton {
	return []model.LinkButton{
		{Text: "View Anime", URL: seriesURLPrefix + ep.SeriesID},
		{Text: "Watch Episode", URL: watchURLPrefix + ep.ID},
	}
}

// PosterURL picks the tall poster with the largest area, or fallback when the
// series has none.
func PosterURL(series *model.Series, fallback string) string {
	if series == nil {
		return fallback
	}
	best, bestArea := "", -1
	for _, img := range series.PosterTall {
		if img.Source == "" {
			continue
		}
		if area := img.Width * img.Height; area > bestArea {
			best, bestArea = img.Source, area
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

// Hashtags builds "#episode_slug #series_slug" from the catalog slugs.
func Hashtags(ep model.Episode) string {
	var tags []string
	for _, slug := range []string{ep.SlugTitle, ep.SeriesSlugTitle} {
		if slug == "" {
			continue
		}
		tags = append(tags, "#"+underscoreRun.ReplaceAllString(strings.ReplaceAll(slug, "-", "_"), "_"))
	}
	return strings.Join(tags, " ")
}

// FormatGenres renders category slugs as a comma-separated title-cased list.
func FormatGenres(categories []string) string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(strings.ReplaceAll(c, "-", " "))
		if c == "" {
			continue
		}
		names = append(names, titleCaser.String(c))
	}
	return strings.Join(names, ", ")
}

// FormatCount abbreviates large counts: 999, 1.2K, 3.4M.
func FormatCount(n int64) string {
	if n < 1000 {
		return strconv.FormatInt(n, 10)
	}
	v, prefix := humanize.ComputeSI(float64(n))
	return humanize.FtoaWithDigits(math.Floor(v*10)/10, 1) + strings.ToUpper(prefix)
}

// LanguageName returns the display name of an audio locale, preferring the
// catalog's own table and falling back to CLDR English names.
func LanguageName(locale string, languages map[string]string) string {
	if name, ok := languages[locale]; ok && name != "" {
		return name
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return locale
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return locale
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + ellipsis
}
