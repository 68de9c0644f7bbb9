package mcpserver

// NoteTermsReference describes the convertible note fields and lifecycle
// statuses for LLM consumers of the read-only tools.
const NoteTermsReference = `# Convertible Note Terms

Every note tracked by the ledger carries these terms.

## Fields

- **principal** - face value of the note, a positive decimal amount.
- **interest_rate** - annual rate as a decimal fraction (0.06 means 6%).
- **compounding** - SIMPLE or COMPOUND. Interest uses an actual/365 day count.
  Simple interest is principal * rate * days / 365; compound interest
  compounds daily at rate / 365.
- **issued_at** - issuance date. Interest accrues from this date.
- **maturity_date** - when the principal falls due. Must be after issuance.
- **discount_rate** - optional conversion discount as a fraction in [0, 1).
  A 0.20 discount converts at 80% of the trigger round price.
- **valuation_cap** - optional pre-money cap. When the round valuation
  exceeds the cap, the conversion price is cap / valuation * trigger price.
- **qualified_financing_threshold** - optional minimum round size that
  triggers a qualified financing. A note without a threshold never
  auto-qualifies.
- **auto_conversion** - whether a qualified financing converts the note
  automatically when a financing event is recorded.

## Derived state

- **accrued_interest** - interest booked so far. Projections via the
  accrued_interest tool never change this; only explicit accruals do.
- **last_accrual_date** - the date interest has been booked through.
- **conversion_price** - set once the note converts; the lower of the
  discounted price and the cap-derived price, falling back to the trigger
  price when the note has neither term.
- **version** - optimistic-concurrency counter, bumped on every saved change.

## Lifecycle

ACTIVE is the only non-terminal status. An active note may move to exactly
one of CONVERTED, REPAID or DEFAULTED, and terminal notes reject every
further operation, including interest accrual.

Repayment must cover the full payoff (principal plus booked interest);
partial repayments are rejected with the required amount.
`
