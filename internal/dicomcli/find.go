package dicomcli

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// findResponseXML mirrors the subset of findscu's XML transcript format
// this package cares about: <responses type="C-FIND"><data-set>
// <element name="...">VALUE</element>...</data-set>...</responses>.
type findResponseXML struct {
	XMLName   xml.Name `xml:"responses"`
	DataSets []struct {
		Elements []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"element"`
	} `xml:"data-set"`
}

// FindStudies issues a C-FIND query for queryParams at (host,port),
// returning one map[tag_name]value per matched study. Each call writes its
// XML transcript to a scratch file under scratchDir and parses it
// afterward.
func (c *Client) FindStudies(ctx context.Context, scratchDir string, queryParams map[string]string, returnTags []string) ([]map[string]string, error) {
	return retryFindStudies(func(attempt int) ([]map[string]string, error) {
		return c.findStudiesOnce(ctx, scratchDir, queryParams, returnTags, attempt)
	})
}

func (c *Client) findStudiesOnce(ctx context.Context, scratchDir string, queryParams map[string]string, returnTags []string, attempt int) ([]map[string]string, error) {
	transcriptPath := filepath.Join(scratchDir, fmt.Sprintf("find-%d-%d.xml", os.Getpid(), attempt))

	args := []string{
		"-aec", c.CalledAET, "-aet", c.CallingAET,
		"-S", "-X", "-od", scratchDir,
		c.Host, strconv.Itoa(c.Port),
	}
	for tag, value := range queryParams {
		args = append(args, "-k", fmt.Sprintf("%s=%s", tag, value))
	}
	for _, tag := range returnTags {
		args = append(args, "-k", tag)
	}

	_, stderr, exitCode, err := c.runCommand(ctx, c.Bin.FindSCU, args)
	if err != nil {
		return nil, &CommandError{Command: c.Bin.FindSCU, ExitCode: -1, Stderr: err.Error()}
	}
	if exitCode != 0 {
		return nil, &CommandError{Command: c.Bin.FindSCU, ExitCode: exitCode, Stderr: stderr}
	}

	return parseFindTranscript(transcriptPath)
}

// parseFindTranscript parses the findscu XML transcript into a slice of
// tag-name→value maps, one per data-set.
func parseFindTranscript(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "scratch file missing: " + err.Error()}
	}

	var parsed findResponseXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, &ParseError{Path: path, Msg: "ill-formed XML: " + err.Error()}
	}

	results := make([]map[string]string, 0, len(parsed.DataSets))
	for _, ds := range parsed.DataSets {
		row := make(map[string]string, len(ds.Elements))
		for _, el := range ds.Elements {
			row[el.Name] = el.Value
		}
		results = append(results, row)
	}
	return results, nil
}
