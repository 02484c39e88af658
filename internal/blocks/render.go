package blocks

import (
	"strings"

	"github.com/jonathan/contract-processor/internal/types"
)

const (
	tableStyle          = `border-collapse: collapse; width: 100%; margin: 8px 0;`
	borderedCellStyle   = `border: 1px solid #000; padding: 6px 8px; text-align: left;`
	borderlessCellStyle = `padding: 2px 6px 2px 0; text-align: left;`
	plainListStyle      = `list-style-type: none; padding-left: 0; margin: 4px 0;`
)

// Render formats items in the given output style. Unknown styles render as bullets.
func Render(outputType string, items []types.BlockItem) string {
	switch outputType {
	case types.OutputList:
		return renderList(items, plainListStyle)
	case types.OutputTable:
		return renderTable(items, borderedCellStyle)
	case types.OutputTableNoBorders:
		return renderTable(items, borderlessCellStyle)
	case types.OutputParagraph:
		return renderParagraph(items)
	default:
		return renderList(items, "")
	}
}

func renderList(items []types.BlockItem, style string) string {
	var sb strings.Builder
	if style == "" {
		sb.WriteString("<ul>")
	} else {
		sb.WriteString(`<ul style="` + style + `">`)
	}
	for _, item := range items {
		sb.WriteString("<li><b>")
		sb.WriteString(item.Label)
		sb.WriteString("</b>: ")
		sb.WriteString(item.Value)
		sb.WriteString("</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

func renderTable(items []types.BlockItem, cellStyle string) string {
	var sb strings.Builder
	sb.WriteString(`<table style="` + tableStyle + `">`)
	sb.WriteString("<thead><tr>")
	sb.WriteString(`<th style="` + cellStyle + `">Item</th>`)
	sb.WriteString(`<th style="` + cellStyle + `">Value</th>`)
	sb.WriteString("</tr></thead><tbody>")
	for _, item := range items {
		sb.WriteString("<tr>")
		sb.WriteString(`<td style="` + cellStyle + `">` + item.Label + "</td>")
		sb.WriteString(`<td style="` + cellStyle + `">` + item.Value + "</td>")
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func renderParagraph(items []types.BlockItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.Label + ": " + item.Value
	}
	return "<p>" + strings.Join(parts, ", ") + "</p>"
}
