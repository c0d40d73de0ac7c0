package mcpserver

// CatalogFormatContract describes the library layout and the filename
// conventions that catalog metadata is derived from.
const CatalogFormatContract = `# Folio Catalog Format Contract

The library is a directory tree with exactly one level of field directories.
Each regular file directly inside a field directory is one catalog record.

## Layout

` + "```" + `text
<library root>/
  Real_Analysis/
    Principles of Mathematical Analysis - Rudin [calculus, classic].pdf
    lecture-notes.txt
  Linear_Algebra/
    Linear Algebra Done Right - Axler.epub
` + "```" + `

## Rules

1. **Field directories.** Underscores become spaces and each word is
   capitalised: ` + "`" + `Real_Analysis` + "`" + ` and ` + "`" + `real-analysis` + "`" + ` are both
   the field "Real Analysis".
   Files at the root and files in nested directories are ignored.
2. **Eligible files** end with ` + "`" + `.pdf` + "`" + `, ` + "`" + `.epub` + "`" + `, ` + "`" + `.mobi` + "`" + `,
   ` + "`" + `.txt` + "`" + `, ` + "`" + `.doc` + "`" + ` or ` + "`" + `.docx` + "`" + ` (any case). Imports accept
   only PDF, EPUB, and MOBI, and the content must match the extension.
3. **Title and author.** The filename without extension is split at the first
   ` + "`" + ` - ` + "`" + ` (space, hyphen, space): the part before is the title, the part
   after is the author. Without a separator the author is "Unknown".
4. **Tags** come from the first ` + "`" + `[...]` + "`" + ` group, comma separated and trimmed.
   The field is always appended as a tag; duplicates are dropped.
5. **Type** follows the extension: ` + "`" + `.txt` + "`" + ` is a "note", ` + "`" + `.doc` + "`" + `
   and ` + "`" + `.docx` + "`" + ` are an "article", everything else is a "book".
6. **Ids** are the lowercased field directory with non-alphanumerics replaced
   by ` + "`" + `_` + "`" + `, followed by ` + "`" + `_` + "`" + ` and a sequence number, e.g. ` + "`" + `real_analysis_3` + "`" + `.
   Ids are never reused.

## Record

` + "```" + `json
{
  "id": "real_analysis_1",
  "title": "Principles of Mathematical Analysis",
  "author": "Rudin",
  "field": "Real Analysis",
  "tags": ["calculus", "classic", "Real Analysis"],
  "filesize": "2.3 MB",
  "type": "book",
  "filename": "Principles of Mathematical Analysis - Rudin [calculus, classic].pdf",
  "path": "Real_Analysis/Principles of Mathematical Analysis - Rudin [calculus, classic].pdf",
  "addedDate": "2026-10-15"
}
` + "```" + `

## Importing

- Use the ` + "`" + `import_book` + "`" + ` tool with an explicit title, author, and field.
  The file is stored as ` + "`" + `<Field_Dir>/<filename>` + "`" + `.
- Prefer filenames in the ` + "`" + `Title - Author [tags].ext` + "`" + ` form so that a
  rebuilt catalog derives the same metadata.
`
