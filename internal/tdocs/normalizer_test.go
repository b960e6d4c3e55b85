package tdocs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const legacyReport = `<html><head><title>TDocs by agenda</title></head><body>
<table><tr><td>Meeting: SA2#130</td></tr></table>
<table>
<thead><tr><th>TD#</th><th>Type</th><th>Title</th><th>Source</th><th>AI</th><th>Result</th><th>Comments</th></tr></thead>
<tbody>
<tr><td>S2-1900001</td><td>CR</td><td>23.501 CR0123 (Rel-16, F): Fix</td><td>Ericsson, Nokia</td><td>6.2.1</td><td>Revised</td><td>Revised to S2-1900002.</td></tr>
<tr><td>6.2.2</td><td>-</td><td></td><td></td><td></td><td></td><td></td></tr>
<tr><td>S2-1900002</td><td>CR</td><td>23.501 CR0123r1 (Rel-16, F): Fix</td><td>Ericsson,<br>Nokia</td><td>6.2.1</td><td>Agreed</td><td>Revision of S2-1900001.<table><tr><td>nested</td></tr></table></td></tr>
</tbody>
</table>
</body></html>`

func TestNormalizeLegacyPicksLastTopLevelTable(t *testing.T) {
	sheet := Normalize(legacyReport, nil)
	require.Equal(t, FormatLegacy, sheet.Format)
	require.Equal(t, []string{"TD#", "Type", "Title", "Source", "AI", "Result", "Comments"}, sheet.Header)
	require.Len(t, sheet.Rows, 2)
	require.Equal(t, "S2-1900001", sheet.Rows[0][0])
	require.Equal(t, "Ericsson, Nokia", sheet.Rows[1][3])
	require.Equal(t, "Revision of S2-1900001. nested", sheet.Rows[1][6])
}

func TestNormalizeLegacySeparatesBlockElementsInCells(t *testing.T) {
	in := `<table>
<tr><td>TD#</td><td>Type</td><td>Source</td><td>Comments</td></tr>
<tr><td>S2-1900004</td><td>CR</td><td><p>Ericsson</p><p>Nokia</p></td><td><p>Revision of S2-1900001</p><div>Revised to S2-1900005</div></td></tr>
</table>`
	sheet := Normalize(in, nil)
	require.Len(t, sheet.Rows, 1)
	require.Equal(t, "Ericsson Nokia", sheet.Rows[0][2])
	require.Equal(t, "Revision of S2-1900001 Revised to S2-1900005", sheet.Rows[0][3])

	a := ParseComment(sheet.Rows[0][3], true)
	require.Equal(t, "S2-1900001", a.RevisionOf)
	require.Equal(t, "S2-1900005", a.RevisedTo)
}

func TestNormalizeLegacyWithoutTheadAndLeadingEmptyColumn(t *testing.T) {
	in := `<table>
<tr><td></td><td>TD#</td><td>Type</td><td>Subject</td></tr>
<tr><td></td><td>S2-1900010</td><td>discussion</td><td>Study</td></tr>
<tr><td></td><td>S2-1900011</td><td>CR</td><td>Change</td></tr>
</table>`
	sheet := Normalize(in, nil)
	require.Equal(t, []string{"TD#", "Type", "Subject"}, sheet.Header)
	require.Equal(t, [][]string{
		{"S2-1900010", "discussion", "Study"},
		{"S2-1900011", "CR", "Change"},
	}, sheet.Rows)
}

const excelReport = `<html xmlns:o="urn:schemas-microsoft-com:office:office">
<head>
<meta name=ProgId content=Excel.Sheet>
<meta name=Generator content="Microsoft Excel 15">
<style>td {mso-number-format:General;}</style>
</head>
<body>
<!--[if gte mso 9]><xml><x:ExcelWorkbook></x:ExcelWorkbook></xml><![endif]-->
<table border=0 cellpadding=0 width=800 style='border-collapse:collapse'>
<tr class=xl65><td class=xl66 width=80>TD#</td><td>Type</td><td>Title</td><td>Source</td><td>AI</td><td>Result</td><td>Comments</td></tr>
<tr><td class=xl67 valign=top><b>S2-1900010</b></td><td><span lang=EN-GB>CR</span></td><td><p>Title &amp; more</p></td><td>Huawei,<br>HiSilicon</td><td>5.1</td><td>Noted</td><td>Merged into S2-1900011</td></tr>
<tr><td>5.2</td><td>-</td><td></td><td></td><td></td><td></td><td></td></tr>
<tr><td>S2-1900011</td><td>CR</td><td>Merged CR</td><td>Huawei</td><td>5.1</td><td>For e-mail approval</td><td></td>
</table>
</body></html>`

func TestNormalizeExcelExport(t *testing.T) {
	require.Equal(t, FormatExcel, DetectFormat(excelReport))
	sheet := Normalize(excelReport, nil)
	require.Equal(t, FormatExcel, sheet.Format)
	require.Equal(t, []string{"TD#", "Type", "Title", "Source", "AI", "Result", "Comments"}, sheet.Header)
	require.Len(t, sheet.Rows, 2)
	require.Equal(t, []string{"S2-1900010", "CR", "Title & more", "Huawei, HiSilicon", "5.1", "Noted", "Merged into S2-1900011"}, sheet.Rows[0])
	require.Equal(t, "For e-mail approval", sheet.Rows[1][5])
}

func TestNormalizeWithoutTableIsEmpty(t *testing.T) {
	for _, in := range []string{"", "not html at all", "<html><body><p>No documents yet</p></body></html>"} {
		sheet := Normalize(in, nil)
		require.Empty(t, sheet.Header)
		require.Empty(t, sheet.Rows)
	}
}

func TestDecodeFallsBackToWindows1252(t *testing.T) {
	require.Equal(t, "Telefónica", Decode([]byte("Telef\xf3nica"), nil))
	require.Equal(t, "Ericsson", Decode([]byte("\xef\xbb\xbfEricsson"), nil))
}

func TestDecodeKeepsBytesUndefinedInWindows1252(t *testing.T) {
	raw := []byte("Telef\xf3nica \x81\x9d")
	require.Equal(t, string(raw), Decode(raw, nil))
}
