package oracle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"magpie/internal/services"
)

// FolderRecommendation is the oracle's answer for an unknown file extension.
type FolderRecommendation struct {
	SuggestedFolderName string `json:"suggested_folder_name"`
	IsNewCategory       bool   `json:"is_new_category"`
}

// CodeClassification names the project a code file belongs to and the folder
// it should land in.
type CodeClassification struct {
	ProjectName     string `json:"project_name"`
	SuggestedFolder string `json:"suggested_folder"`
}

// ImageDescription pairs an image filename with the short title the oracle
// generated for it.
type ImageDescription struct {
	OriginalFilename string `json:"original_filename"`
	ShortTitle       string `json:"short_title"`
}

// PdfClassification names the Documents subfolder a PDF belongs in.
type PdfClassification struct {
	SuggestedSubfolder string `json:"suggested_subfolder"`
	IsNewSubfolder     bool   `json:"is_new_subfolder"`
}

// ImageAttachment is an image handed to the oracle inline as a data URL.
type ImageAttachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

func (a ImageAttachment) dataURL() string {
	mime := a.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

const extensionSystemPrompt = "You are an expert file organizer. The input is an unknown file extension. " +
	"Recommend a folder name for files carrying it. The existing categories are: [%s]. " +
	"Use an existing category when appropriate, or suggest a new, clean one (for example 'Blender_Files'). " +
	"Respond with a single JSON object: {\"suggested_folder_name\": string, \"is_new_category\": boolean}."

const codeSystemPrompt = "You are an expert software engineer and project classifier. " +
	"Analyze the code snippet. Infer its main purpose, language, and the project it belongs to, " +
	"then provide a clean, project-based folder classification in snake_case " +
	"(for example 'Web_Scraper', 'Financial_Model'). " +
	"Respond with a single JSON object: {\"project_name\": string, \"suggested_folder\": string}."

const describeBatchSystemPrompt = "You are an expert file naming assistant. " +
	"Respond with a single JSON object: " +
	"{\"descriptions\": [{\"original_filename\": string, \"short_title\": string}]}. " +
	"Repeat each image's filename exactly as given."

const describeBatchInstruction = "Analyze the following batch of images. For each image, " +
	"generate a concise, descriptive, 3-5 word title suitable for renaming. " +
	"Return one entry per image."

const describeSystemPrompt = "You are an expert file naming assistant. " +
	"Respond with a single JSON object with the key 'short_title'."

const describeInstruction = "Analyze this image and give a concise, descriptive, 3-5 word title. " +
	"Respond as {\"short_title\": \"your title\"}."

const pdfSystemPrompt = "You are an expert document sorter. Classify the document into one of the " +
	"existing subfolders or suggest a new one. Suggested names must be clean and reflect content " +
	"(for example 'Invoices', 'Research_Papers'). " +
	"Respond with a single JSON object: {\"suggested_subfolder\": string, \"is_new_subfolder\": boolean}."

// ClassifyExtension asks the oracle which folder files with the given
// extension belong in, offering the current categories as context. A response
// without a folder name fails with services.ErrValidation and is never
// retried, since the model already answered.
func (c *Client) ClassifyExtension(ctx context.Context, ext string, categories []string) (FolderRecommendation, error) {
	var empty FolderRecommendation
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return empty, errors.New("oracle classify extension: extension required")
	}

	system := fmt.Sprintf(extensionSystemPrompt, strings.Join(categories, ", "))
	user := fmt.Sprintf("Classify the unknown file extension '%s' and suggest a folder.", ext)

	content, err := c.CompleteJSON(ctx, system, user)
	if err != nil {
		return empty, err
	}
	var parsed FolderRecommendation
	if err := DecodeOracleJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("oracle classify extension: parse payload: %w", err)
	}
	parsed.SuggestedFolderName = strings.TrimSpace(parsed.SuggestedFolderName)
	if parsed.SuggestedFolderName == "" {
		return empty, fmt.Errorf("oracle classify extension: %w: suggested_folder_name is empty", services.ErrValidation)
	}
	return parsed, nil
}

// ClassifyCode asks the oracle to classify a code file from a snippet of its
// content.
func (c *Client) ClassifyCode(ctx context.Context, filename, snippet string) (CodeClassification, error) {
	var empty CodeClassification
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return empty, errors.New("oracle classify code: filename required")
	}
	if strings.TrimSpace(snippet) == "" {
		return empty, errors.New("oracle classify code: snippet required")
	}

	user := fmt.Sprintf("Code snippet from %s:\n\n%s", filename, snippet)

	content, err := c.CompleteJSON(ctx, codeSystemPrompt, user)
	if err != nil {
		return empty, err
	}
	var parsed CodeClassification
	if err := DecodeOracleJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("oracle classify code: parse payload: %w", err)
	}
	parsed.ProjectName = strings.TrimSpace(parsed.ProjectName)
	parsed.SuggestedFolder = strings.TrimSpace(parsed.SuggestedFolder)
	if parsed.SuggestedFolder == "" {
		return empty, fmt.Errorf("oracle classify code: %w: suggested_folder is empty", services.ErrValidation)
	}
	return parsed, nil
}

// DescribeImageBatch sends a batch of images in a single request and returns
// descriptions keyed by original filename. Entries the model omitted,
// misnamed, or left without a title are simply absent from the map; callers
// route those files to the per-file repair pass.
func (c *Client) DescribeImageBatch(ctx context.Context, batch []ImageAttachment) (map[string]ImageDescription, error) {
	if len(batch) == 0 {
		return nil, errors.New("oracle describe batch: empty batch")
	}

	parts := []contentPart{{Type: "text", Text: describeBatchInstruction}}
	for _, img := range batch {
		parts = append(parts,
			contentPart{Type: "image_url", ImageURL: &imageSource{URL: img.dataURL()}},
			contentPart{Type: "text", Text: "Image file: " + img.Filename},
		)
	}
	messages := []chatMessage{
		{Role: "system", Content: describeBatchSystemPrompt},
		{Role: "user", Content: parts},
	}

	content, err := c.completeMessages(ctx, messages, "oracle describe batch")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Descriptions []ImageDescription `json:"descriptions"`
	}
	if err := DecodeOracleJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("oracle describe batch: parse payload: %w", err)
	}

	results := make(map[string]ImageDescription, len(parsed.Descriptions))
	for _, desc := range parsed.Descriptions {
		desc.OriginalFilename = strings.TrimSpace(desc.OriginalFilename)
		desc.ShortTitle = strings.TrimSpace(desc.ShortTitle)
		if desc.OriginalFilename == "" || desc.ShortTitle == "" {
			continue
		}
		results[desc.OriginalFilename] = desc
	}
	return results, nil
}

// DescribeImage titles a single image. Used by the repair pass after a batch
// left a file undescribed.
func (c *Client) DescribeImage(ctx context.Context, img ImageAttachment) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.New("oracle describe image: image data required")
	}

	parts := []contentPart{
		{Type: "image_url", ImageURL: &imageSource{URL: img.dataURL()}},
		{Type: "text", Text: describeInstruction},
	}
	messages := []chatMessage{
		{Role: "system", Content: describeSystemPrompt},
		{Role: "user", Content: parts},
	}

	content, err := c.completeMessages(ctx, messages, "oracle describe image")
	if err != nil {
		return "", err
	}
	var parsed struct {
		ShortTitle string `json:"short_title"`
	}
	if err := DecodeOracleJSON(content, &parsed); err != nil {
		return "", fmt.Errorf("oracle describe image: parse payload: %w", err)
	}
	title := strings.TrimSpace(parsed.ShortTitle)
	if title == "" {
		return "", fmt.Errorf("oracle describe image: %w: short_title is empty", services.ErrValidation)
	}
	return title, nil
}

// ClassifyPDF asks the oracle which Documents subfolder a PDF belongs in,
// inferring content from the filename and offering the current subfolders as
// context.
func (c *Client) ClassifyPDF(ctx context.Context, filename string, subfolders []string) (PdfClassification, error) {
	var empty PdfClassification
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return empty, errors.New("oracle classify pdf: filename required")
	}

	user := fmt.Sprintf("The PDF file is named '%s'. Infer its content from the name. "+
		"Existing subfolders are: [%s]. Classify it.", filename, strings.Join(subfolders, ", "))

	content, err := c.CompleteJSON(ctx, pdfSystemPrompt, user)
	if err != nil {
		return empty, err
	}
	var parsed PdfClassification
	if err := DecodeOracleJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("oracle classify pdf: parse payload: %w", err)
	}
	parsed.SuggestedSubfolder = strings.TrimSpace(parsed.SuggestedSubfolder)
	if parsed.SuggestedSubfolder == "" {
		return empty, fmt.Errorf("oracle classify pdf: %w: suggested_subfolder is empty", services.ErrValidation)
	}
	return parsed, nil
}
