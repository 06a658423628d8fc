package vision

const responseFormat = `Return ONLY valid JSON in this exact format (no markdown, no explanation, no code blocks):
{
  "storeName": "Store name if visible, or null",
  "purchaseDate": "YYYY-MM-DD format if visible, or null",
  "totalValue": 123.45,
  "products": [
    {
      "code": "Product code/SKU if visible, or null",
      "description": "Product description/name",
      "unitValue": 10.99,
      "unitIdentifier": "unit type (kg, un, L, etc) or null",
      "quantity": 2,
      "totalValue": 21.98
    }
  ]
}

Rules:
- All monetary values must be numbers (not strings)
- If quantity is not specified, assume 1
- totalValue for each product = unitValue * quantity (or the line total shown on receipt)
- The receipt totalValue should match sum of all product totalValues (or use the printed total)
- Ignore tax breakdowns and subtotals, only include actual products
- For items sold by weight, unitIdentifier should be "kg" or "lb" as appropriate
- Product descriptions should be cleaned up and readable (expand abbreviations when obvious)
`

const singleImagePrompt = `You are a receipt OCR and data extraction assistant. Analyze the provided receipt image and extract all purchase information.

Extract ALL line items visible on the receipt.

` + responseFormat

const multiImagePrompt = `You are a receipt OCR and data extraction assistant. Analyze the provided receipt images and extract all purchase information.

IMPORTANT INSTRUCTIONS:
1. The images represent ONE SINGLE RECEIPT, possibly a long receipt photographed in several parts
2. Combine all items from all images into a single unified list
3. DEDUPLICATE items that appear in more than one image (overlapping sections)
4. Use the sequence or line numbers printed on the left of many receipts to identify unique items and keep their order
5. Extract ALL line items visible on the receipt

` + responseFormat + `- When sequence/line numbers are visible, use them to ensure no duplicates and correct ordering
`
