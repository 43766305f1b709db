// Package extract turns files into plain text pages.
//
// Extractors are registered by file extension in a Registry, so adding a
// format is a single Register call:
//
//	registry := extract.NewDefaultRegistry()
//	registry.Register(myExtractor, ".epub")
//
//	doc, err := registry.Extract(ctx, "/docs/rules.pdf")
//	if errors.Is(err, extract.ErrUnsupportedFormat) {
//	    // reject the file
//	}
//
// The default registry handles .txt and .md as UTF-8 text, .csv as an
// aligned table, and .pdf, .docx, .odt, .rtf, .html and .htm through docconv.
// PDF, Word and RTF conversion need the external tools docconv shells out to
// (pdftotext, wvText, unrtf) on PATH.
package extract
