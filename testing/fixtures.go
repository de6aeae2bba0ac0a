package testing

import (
	"fmt"
	"math/rand"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// TestAdminPassword is the plain password of admins created by CreateTestAdmin
const TestAdminPassword = "TestPass123!"

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCampaign creates an active campaign with the given raised amount
func (tf *TestFixtures) CreateTestCampaign(raised decimal.Decimal) (*models.Campaign, error) {
	beneficiary := fmt.Sprintf("beneficiary.%d@example.com", rand.Intn(10000000))
	campaign := &models.Campaign{
		Title:            fmt.Sprintf("Test Campaign %d", rand.Intn(1000000)),
		Status:           models.CampaignStatusActive,
		Currency:         "INR",
		TargetAmount:     decimal.NewFromInt(100000),
		RaisedAmount:     raised,
		DisbursedAmount:  decimal.Zero,
		BeneficiaryEmail: &beneficiary,
	}

	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestDonation creates an INITIATED donation with a random gateway order id
func (tf *TestFixtures) CreateTestDonation(campaignID, donorID uint, amount decimal.Decimal) (*models.Donation, error) {
	donation := &models.Donation{
		CorrelationID:  uuid.New(),
		CampaignID:     campaignID,
		DonorID:        donorID,
		DonorName:      "Test Donor",
		DonorEmail:     fmt.Sprintf("donor.%d@example.com", rand.Intn(10000000)),
		Amount:         amount,
		Currency:       "INR",
		GatewayOrderID: fmt.Sprintf("order_test%010d", rand.Intn(1000000000)),
		Status:         models.DonationStatusInitiated,
	}

	if err := tf.DB.DB.Create(donation).Error; err != nil {
		return nil, fmt.Errorf("failed to create test donation: %w", err)
	}
	return donation, nil
}

// CreateTestAdmin creates an active admin whose password is TestAdminPassword
func (tf *TestFixtures) CreateTestAdmin() (*models.Admin, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(TestAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.Admin{
		Username:     fmt.Sprintf("admin_%d", rand.Intn(10000000)),
		PasswordHash: string(hashedPassword),
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(admin).Error; err != nil {
		return nil, fmt.Errorf("failed to create test admin: %w", err)
	}
	return admin, nil
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(campaignID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test %s action", action)
	ipAddress := "127.0.0.1"
	userAgent := "Test User Agent"

	audit := &models.AuditLog{
		ActorType:   models.AuditActorSystem,
		CampaignID:  campaignID,
		Action:      action,
		Description: &description,
		Success:     &success,
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if !success {
		errorMessage := "Test failed action"
		audit.ErrorMessage = &errorMessage
	}

	if err := tf.DB.DB.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}
	return audit, nil
}
