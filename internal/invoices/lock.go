package invoices

// EditingLocked decides whether an invoice's content may still be edited.
// Internal invoices freeze once approved; external invoices never lock. Both
// inputs may be nil, in which case the invoice is treated as unlocked.
//
// The client flag covers invoices created against an internal client before
// the flag has been echoed onto the invoice itself.
func EditingLocked(inv *Invoice, client *Client) bool {
	internal := (inv != nil && inv.IsInternal) || (client != nil && client.IsInternal)
	if !internal {
		return false
	}
	return inv != nil && inv.ApprovalStatus == ApprovalApproved
}
