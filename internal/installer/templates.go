package installer

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/cochaviz/mbrlab/internal/models"
	"github.com/cochaviz/mbrlab/internal/safety"
)

//go:embed assets/*.tmpl
var assetFS embed.FS

var templates = template.Must(template.New("installer").
	Funcs(template.FuncMap{"cquote": strconv.Quote}).
	ParseFS(assetFS, "assets/*.tmpl"))

const bytesPerRow = 16

type templateData struct {
	VariantID string
	Size      int
	Rows      []string
	Phrase    string
	Fragments []string
}

func newTemplateData(variantID string, image models.BootImage) templateData {
	return templateData{
		VariantID: variantID,
		Size:      models.SectorSize,
		Rows:      hexRows(image),
		Phrase:    safety.HighTierPhrase,
		Fragments: safety.PhysicalDriveFragments,
	}
}

// hexRows renders the image as comma-terminated rows of C hex literals.
func hexRows(image models.BootImage) []string {
	rows := make([]string, 0, models.SectorSize/bytesPerRow)
	var row strings.Builder
	for i, b := range image {
		if i%bytesPerRow != 0 {
			row.WriteByte(' ')
		}
		fmt.Fprintf(&row, "0x%02X,", b)
		if (i+1)%bytesPerRow == 0 {
			rows = append(rows, row.String())
			row.Reset()
		}
	}
	return rows
}

func renderSource(variantID string, image models.BootImage) ([]byte, error) {
	return render("installer.cpp.tmpl", newTemplateData(variantID, image))
}

func renderManifest(variantID string) ([]byte, error) {
	return render("installer.manifest.tmpl", templateData{VariantID: variantID})
}

// resourceScript links the manifest as RT_MANIFEST resource 1.
func resourceScript(manifestName string) []byte {
	return []byte(fmt.Sprintf("1 24 %q\n", manifestName))
}

func render(name string, data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
