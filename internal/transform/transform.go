// Package transform converts legacy HTML post bodies into markdown,
// rewriting inline file-store references into upload links and appending
// dedicated attachments.
package transform

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"forumport/internal/entities"
	"forumport/internal/resolver"
)

// Uploader ingests a file from disk into the target platform.
type Uploader interface {
	CreateUpload(filePath, originalName string, authorID int64) (*entities.Upload, error)
}

// inlineRef matches anchors pointing into the legacy vendor file store:
// .../__key/<directory-key>/<path-key>/<file-name>
var inlineRef = regexp.MustCompile(`<a[^>]*href="[^"]*__key/([^/"]+)/([^/"]+)/([^/"]+)"[^>]*>([^<]*)</a>`)

// Quote markers must sit on their own paragraph or the target platform
// renders them as literal text. The "tight" forms handle markers glued to
// surrounding text, the "close" forms a single separating newline.
var (
	quoteStartTight = regexp.MustCompile(`([^\n])(\[quote)`)
	quoteStartClose = regexp.MustCompile(`([^\n])\n(\[quote)`)
	quoteEndTight   = regexp.MustCompile(`([^\n])(\[/quote\])`)
	quoteEndClose   = regexp.MustCompile(`([^\n])\n(\[/quote\])`)
)

// The markdown converter escapes bracket characters in text nodes, which
// would break quote markers that survived as plain text.
var escapedQuoteMarker = regexp.MustCompile(`\\\[(/?quote[^\]\n]*?)\\?\]`)

type Transformer struct {
	root      string // legacy file store root; empty disables attachment work
	resolver  *resolver.Resolver
	uploader  Uploader
	converter *md.Converter
}

func New(root string, res *resolver.Resolver, up Uploader) *Transformer {
	return &Transformer{
		root:      root,
		resolver:  res,
		uploader:  up,
		converter: md.NewConverter("", true, nil),
	}
}

// Rewrite turns a legacy HTML body into the target platform's markdown.
// Inline file-store anchors become upload links where the file can be
// located; unresolvable ones degrade to their link text. A dedicated
// attachment, when present, is appended after the body unless an inline
// reference already consumed the same file.
func (t *Transformer) Rewrite(body string, authorID int64, att *entities.AttachmentDescriptor) (string, error) {
	consumed := make(map[string]bool)

	var pending []string
	if t.root != "" {
		body = t.rewriteInline(body, authorID, consumed, &pending)
	}

	out, err := t.converter.ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("failed to convert body to markdown: %w", err)
	}

	for i, link := range pending {
		out = strings.Replace(out, refToken(i), link, 1)
	}

	out = escapedQuoteMarker.ReplaceAllString(out, "[$1]")
	out = repairQuotes(out)

	if att != nil {
		out = t.appendAttachment(out, authorID, att, consumed)
	}
	return out, nil
}

// rewriteInline resolves file-store anchors and swaps each for a placeholder
// token. Tokens survive markdown conversion untouched and are spliced with
// the real upload links afterwards, so the converter cannot escape them.
func (t *Transformer) rewriteInline(body string, authorID int64, consumed map[string]bool, pending *[]string) string {
	return inlineRef.ReplaceAllStringFunc(body, func(m string) string {
		g := inlineRef.FindStringSubmatch(m)
		dirKey, pathKey, hrefName, text := g[1], g[2], g[3], g[4]
		if unescaped, err := url.PathUnescape(hrefName); err == nil {
			hrefName = unescaped
		}

		path, ok := t.resolver.Resolve(dirKey, pathKey, hrefName)
		if !ok && text != "" && text != hrefName {
			// Href and link text frequently disagree after the source
			// platform's transliteration; the text is the second guess.
			path, ok = t.resolver.Resolve(dirKey, pathKey, text)
		}
		if !ok {
			log.Printf("Inline attachment %s/%s/%s not found, keeping link text", dirKey, pathKey, hrefName)
			return displayName(text, hrefName)
		}

		up, err := t.uploader.CreateUpload(path, filepath.Base(path), authorID)
		if err != nil {
			log.Printf("Failed to upload inline attachment %s: %v", path, err)
			return displayName(text, hrefName)
		}
		consumed[path] = true

		link := fmt.Sprintf("[%s](%s)", displayName(text, hrefName), up.ShortRef())
		*pending = append(*pending, link)
		return refToken(len(*pending) - 1)
	})
}

func (t *Transformer) appendAttachment(body string, authorID int64, att *entities.AttachmentDescriptor, consumed map[string]bool) string {
	name := resolver.CleanFileName(att.FileName)

	if att.IsRemote {
		// Remote attachments have no local file; surface the name only.
		return body + "\n\n" + name
	}
	if t.root == "" {
		return body
	}

	path := t.attachmentPath(att, name)
	if consumed[path] {
		return body
	}
	if _, err := os.Stat(path); err != nil {
		log.Printf("Attachment file missing for content %d: %s", att.ContentID, path)
		return body
	}

	up, err := t.uploader.CreateUpload(path, name, authorID)
	if err != nil {
		log.Printf("Failed to upload attachment %s: %v", path, err)
		return body
	}
	return body + fmt.Sprintf("\n\n[%s](%s)", name, up.ShortRef())
}

// attachmentPath computes the deterministic vendor-store location of a
// dedicated attachment: three zero-padded id directories, then the content
// id rendered as ten digits and split into five byte-pair directories.
func (t *Transformer) attachmentPath(att *entities.AttachmentDescriptor, cleanName string) string {
	id := fmt.Sprintf("%010d", att.ContentID)
	return filepath.Join(t.root,
		fmt.Sprintf("%02d", att.ApplicationTypeID),
		fmt.Sprintf("%02d", att.ApplicationID),
		fmt.Sprintf("%02d", att.ContentTypeID),
		id[0:2], id[2:4], id[4:6], id[6:8], id[8:10],
		cleanName)
}

func displayName(text, hrefName string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	return hrefName
}

func refToken(i int) string {
	return fmt.Sprintf("uploadref%dx", i)
}

// repairQuotes makes sure every quote marker starts its own paragraph.
func repairQuotes(body string) string {
	body = quoteStartTight.ReplaceAllString(body, "$1\n\n$2")
	body = quoteStartClose.ReplaceAllString(body, "$1\n\n$2")
	body = quoteEndTight.ReplaceAllString(body, "$1\n\n$2")
	body = quoteEndClose.ReplaceAllString(body, "$1\n\n$2")
	return body
}
