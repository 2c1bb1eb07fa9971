package export

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// ImageFolder is the archive directory holding fetched images.
const ImageFolder = "student_images/"

// DefaultImageExt is used when the URL has no recognised image extension.
const DefaultImageExt = "jpg"

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "svg": true,
}

var whitespace = regexp.MustCompile(`\s+`)

// Label is the school name used in file names, or "all" when empty.
// Path separators are replaced so the label cannot escape the archive root.
func Label(school string) string {
	school = strings.TrimSpace(school)
	if school == "" {
		return "all"
	}
	return strings.NewReplacer("/", "_", `\`, "_").Replace(school)
}

// SpreadsheetName is the xlsx file name inside the archive.
func SpreadsheetName(school string) string {
	return "students-" + Label(school) + ".xlsx"
}

// ArchiveName is the downloadable zip name.
func ArchiveName(school string) string {
	return "students_data_" + Label(school) + ".zip"
}

// Slug lower-cases a student name and replaces whitespace runs with "_".
func Slug(name string) string {
	s := whitespace.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), "_")
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "" {
		return "student"
	}
	return s
}

// ImageExt sniffs the extension from the URL path, limited to known image types.
func ImageExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if imageExts[ext] {
		return ext
	}
	return DefaultImageExt
}

// ImageEntry is the archive path of the image for the record at position index.
func ImageEntry(name string, index int, rawURL string) string {
	return ImageFolder + Slug(name) + "_" + strconv.Itoa(index+1) + "." + ImageExt(rawURL)
}
