package mcpserver

// ExportFormatContract describes the files produced by export_note and the
// HTTP export endpoint, so a consumer can decrypt them without this program.
const ExportFormatContract = `# Retronotes Export Format

An export is a two-line ASCII file, conventionally named ` + "`note_<title>.secure`" + `.

` + "```" + `
<base64 salt>
<fernet token>
` + "```" + `

1. **Line 1** is the 16-byte random salt, standard base64 with padding.
2. **Line 2** is a Fernet token (URL-safe base64, version byte 0x80,
   AES-128-CBC with HMAC-SHA256).
3. **Key**: PBKDF2-HMAC-SHA256 over the UTF-8 password and the salt,
   390000 iterations, 32 bytes, encoded URL-safe base64 as the Fernet key.
4. Every export uses a fresh salt, so exporting the same note twice yields
   different files.

## Decrypted content

` + "```" + `
Title: <title>
Created: <YYYY-MM-DD HH:MM:SS>
Last Modified: <YYYY-MM-DD HH:MM:SS>

<content>
` + "```" + `

## File name

Runs of characters outside ` + "`[A-Za-z0-9_-]`" + ` in the trimmed title are
replaced with a single underscore. An empty result becomes ` + "`untitled`" + `.
`
