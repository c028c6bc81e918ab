package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroupOrderStatus(t *testing.T) {
	status, err := ParseGroupOrderStatus("submitted_to_cenabast")
	require.NoError(t, err)
	assert.Equal(t, GroupOrderSubmittedToCenabast, status)

	_, err = ParseGroupOrderStatus("SUBMITTED_TO_CENABAST")
	assert.Error(t, err)
}

func TestGroupOrderStatusTerminal(t *testing.T) {
	assert.True(t, GroupOrderDistributed.IsTerminal())
	assert.True(t, GroupOrderCancelled.IsTerminal())
	assert.False(t, GroupOrderFulfilled.IsTerminal())
}

func TestParseIntentAndAllocationStatus(t *testing.T) {
	intent, err := ParseIntentStatus("aggregated")
	require.NoError(t, err)
	assert.True(t, intent.IsValid())

	_, err = ParseAllocationStatus("lost")
	assert.Error(t, err)

	fee, err := ParseFeeStatus("invoiced")
	require.NoError(t, err)
	assert.Equal(t, FeeInvoiced, fee)
	assert.False(t, FeeStatus("waived").IsValid())
}

func TestParseInstitutionAndRole(t *testing.T) {
	inst, err := ParseInstitutionType("ngo")
	require.NoError(t, err)
	assert.Equal(t, InstitutionNGO, inst)

	_, err = ParseMemberRole("owner")
	assert.Error(t, err)
	assert.True(t, MemberRoleAdmin.IsValid())
}

func TestOutboxEventTypes(t *testing.T) {
	assert.True(t, EventGroupOrderDistributed.IsValid())
	_, err := ParseOutboxAggregateType("supplier_invoice")
	assert.Error(t, err)
}
