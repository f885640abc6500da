package web

import (
    "github.com/local/convertdesk/internal/filetype"
)

// Tool describes one conversion endpoint of the API and how the editor
// prepares its input.
type Tool struct {
    Name      string
    Endpoint  string
    FileField string
    Accept    []filetype.Category
    Preview   bool // render the PDF and keep it on a preview surface
    Multi     bool // several inputs, submitted in list order
}

var pdfOnly = []filetype.Category{filetype.CategoryPDF}

var tools = map[string]Tool{
    "crop":      {Name: "crop", Endpoint: "/api/pdf/crop/", FileField: "file", Accept: pdfOnly, Preview: true},
    "watermark": {Name: "watermark", Endpoint: "/api/pdf/watermark/", FileField: "file", Accept: pdfOnly, Preview: true},
    "organize":  {Name: "organize", Endpoint: "/api/pdf/organize/", FileField: "file", Accept: pdfOnly, Preview: true},
    "merge":     {Name: "merge", Endpoint: "/api/pdf/merge/", FileField: "pdf_files", Accept: pdfOnly, Multi: true},
    "convert": {Name: "convert", Endpoint: "/api/convert/", FileField: "file", Accept: []filetype.Category{
        filetype.CategoryPDF, filetype.CategoryOffice, filetype.CategoryImage, filetype.CategoryText,
    }},
}

// LookupTool returns the tool registered under name.
func LookupTool(name string) (Tool, bool) {
    t, ok := tools[name]
    return t, ok
}
