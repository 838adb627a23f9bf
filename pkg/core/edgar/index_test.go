package edgar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const indexPageHTML = `
<html><body>
<table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr>
  <td>1</td><td>primary_doc.xml</td>
  <td><a href="/Archives/edgar/data/1067983/000095012324011775/xslForm13F_X02/primary_doc.xml">primary_doc.html</a>
      <a href="/Archives/edgar/data/1067983/000095012324011775/primary_doc.xml">primary_doc.xml</a></td>
  <td>13F-HR</td><td>3319</td>
</tr>
<tr>
  <td>2</td><td>INFORMATION TABLE</td>
  <td><a href="/Archives/edgar/data/1067983/000095012324011775/xslForm13F_X02/infotable.xml">infotable.html</a>
      <a href="/Archives/edgar/data/1067983/000095012324011775/infotable.xml">infotable.xml</a></td>
  <td>INFORMATION TABLE</td><td>91552</td>
</tr>
</table>
</body></html>`

func TestParseIndexHTMLFindsBothDocuments(t *testing.T) {
	docs, err := parseIndexHTML([]byte(indexPageHTML))
	require.NoError(t, err)

	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/1067983/000095012324011775/primary_doc.xml",
		docs.PrimaryDocURL)
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/1067983/000095012324011775/infotable.xml",
		docs.InfoTableURL)
}

func TestParseIndexHTMLSkipsViewerWrappers(t *testing.T) {
	docs, err := parseIndexHTML([]byte(indexPageHTML))
	require.NoError(t, err)
	assert.NotContains(t, docs.PrimaryDocURL, "/xsl")
	assert.NotContains(t, docs.InfoTableURL, "/xsl")
}

func TestParseIndexHTMLMissingComponents(t *testing.T) {
	html := `<html><body><table>
	<tr><td>Some Filing</td><td><a href="/doc.htm">doc.htm</a></td></tr>
	</table></body></html>`

	docs, err := parseIndexHTML([]byte(html))
	require.NoError(t, err)
	assert.Empty(t, docs.PrimaryDocURL)
	assert.Empty(t, docs.InfoTableURL)
}

func TestFilingIndexURL(t *testing.T) {
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/1067983/000095012324011775/0000950123-24-011775-index.htm",
		FilingIndexURL("0001067983", "0000950123-24-011775"))
}
